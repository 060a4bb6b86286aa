// Package standings computes league tables from completed match results.
//
// All functions are pure: they never mutate the table they are given and hold no
// state between calls. Callers that persist a table are responsible for
// serializing concurrent updates to it.
package standings

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Dosada05/league-standings/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	PointsForWin  = 3
	PointsForDraw = 1

	// MaxScore matches the INTEGER score columns.
	MaxScore = math.MaxInt32
)

var ErrInvalidInput = errors.New("invalid standings input")

// ApplyMatchResult counts one completed match into the table and returns the
// re-sorted result. There is no match deduplication here: applying the same
// result twice counts it twice.
func ApplyMatchResult(table models.Standings, result models.MatchResult) (models.Standings, error) {
	home := strings.TrimSpace(result.HomeTeam)
	away := strings.TrimSpace(result.AwayTeam)

	switch {
	case home == "" || away == "":
		return nil, fmt.Errorf("%w: both team names are required", ErrInvalidInput)
	case strings.EqualFold(home, away):
		return nil, fmt.Errorf("%w: a team cannot play itself (%q)", ErrInvalidInput, home)
	case result.HomeScore < 0:
		return nil, fmt.Errorf("%w: home score must be non-negative, got %d", ErrInvalidInput, result.HomeScore)
	case result.AwayScore < 0:
		return nil, fmt.Errorf("%w: away score must be non-negative, got %d", ErrInvalidInput, result.AwayScore)
	case result.HomeScore > MaxScore || result.AwayScore > MaxScore:
		return nil, fmt.Errorf("%w: scores must not exceed %d", ErrInvalidInput, MaxScore)
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	updated := slices.Clone(table)
	homeEntry := entryOrNew(updated, home)
	awayEntry := entryOrNew(updated, away)
	if !canRecord(homeEntry, result.HomeScore, result.AwayScore) {
		return nil, fmt.Errorf("%w: counters of team %q would overflow", ErrInvalidInput, homeEntry.TeamName)
	}
	if !canRecord(awayEntry, result.AwayScore, result.HomeScore) {
		return nil, fmt.Errorf("%w: counters of team %q would overflow", ErrInvalidInput, awayEntry.TeamName)
	}

	record(&homeEntry, result.HomeScore, result.AwayScore)
	record(&awayEntry, result.AwayScore, result.HomeScore)

	updated = upsert(updated, homeEntry)
	updated = upsert(updated, awayEntry)

	return SortTable(updated), nil
}

// canRecord reports whether record can add the match without wrapping any counter.
// ValidateTable guarantees the counters are non-negative here.
func canRecord(e models.StandingEntry, scored, conceded int) bool {
	return e.Played < math.MaxInt &&
		e.Won < math.MaxInt && e.Drawn < math.MaxInt && e.Lost < math.MaxInt &&
		e.Points <= math.MaxInt-PointsForWin &&
		e.GoalsFor <= math.MaxInt-scored &&
		e.GoalsAgainst <= math.MaxInt-conceded
}

func record(e *models.StandingEntry, scored, conceded int) {
	e.Played++
	e.GoalsFor += scored
	e.GoalsAgainst += conceded
	e.GoalDifference = e.GoalsFor - e.GoalsAgainst

	switch {
	case scored > conceded:
		e.Won++
		e.Points += PointsForWin
	case scored == conceded:
		e.Drawn++
		e.Points += PointsForDraw
	default:
		e.Lost++
	}
}

func entryOrNew(table models.Standings, teamName string) models.StandingEntry {
	if i := indexOf(table, teamName); i >= 0 {
		return table[i]
	}
	return models.StandingEntry{TeamName: teamName}
}

func upsert(table models.Standings, entry models.StandingEntry) models.Standings {
	if i := indexOf(table, entry.TeamName); i >= 0 {
		table[i] = entry
		return table
	}
	return append(table, entry)
}

func indexOf(table models.Standings, teamName string) int {
	name := strings.TrimSpace(teamName)
	return slices.IndexFunc(table, func(e models.StandingEntry) bool {
		return strings.EqualFold(strings.TrimSpace(e.TeamName), name)
	})
}

// SortTable returns a ranked copy of the table: points, goal difference and
// goals scored descending, then team name ascending.
func SortTable(table models.Standings) models.Standings {
	sorted := slices.Clone(table)
	if sorted == nil {
		sorted = models.Standings{}
	}

	// Collators keep internal buffers, so one per call.
	names := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(sorted, func(a, b models.StandingEntry) int {
		return compareEntries(names, a, b)
	})
	return sorted
}

func compareEntries(names *collate.Collator, a, b models.StandingEntry) int {
	if c := cmp.Compare(b.Points, a.Points); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalDifference, a.GoalDifference); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalsFor, a.GoalsFor); c != 0 {
		return c
	}
	if c := names.CompareString(a.TeamName, b.TeamName); c != 0 {
		return c
	}
	return strings.Compare(a.TeamName, b.TeamName)
}

// GetStanding looks a team up by name, ignoring case.
func GetStanding(table models.Standings, teamName string) (models.StandingEntry, bool) {
	i := indexOf(table, teamName)
	if i < 0 {
		return models.StandingEntry{}, false
	}
	return table[i], true
}

// RemoveTeam drops a team's entry. Opponents keep the statistics of matches
// they played against it.
func RemoveTeam(table models.Standings, teamName string) (models.Standings, bool) {
	i := indexOf(table, teamName)
	if i < 0 {
		return table, false
	}
	return slices.Delete(slices.Clone(table), i, i+1), true
}

// GetTopN returns a copy of the first n entries. The table must already be sorted.
func GetTopN(table models.Standings, n int) models.Standings {
	if n <= 0 || len(table) == 0 {
		return models.Standings{}
	}
	return slices.Clone(table[:min(n, len(table))])
}

// NewTable seeds a zeroed table for the given teams.
func NewTable(teamNames ...string) (models.Standings, error) {
	table := make(models.Standings, 0, len(teamNames))
	for _, name := range teamNames {
		table = append(table, models.StandingEntry{TeamName: strings.TrimSpace(name)})
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return SortTable(table), nil
}

// ValidateTable checks the structure of a table: names present and unique
// (case-insensitive), no negative counters. Derived fields are not cross-checked.
func ValidateTable(table models.Standings) error {
	seen := make(map[string]struct{}, len(table))
	for i, e := range table {
		name := strings.TrimSpace(e.TeamName)
		if name == "" {
			return fmt.Errorf("%w: entry %d has no team name", ErrInvalidInput, i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate team %q", ErrInvalidInput, name)
		}
		seen[key] = struct{}{}

		if e.Played < 0 || e.Won < 0 || e.Drawn < 0 || e.Lost < 0 || e.GoalsFor < 0 || e.GoalsAgainst < 0 || e.Points < 0 {
			return fmt.Errorf("%w: team %q has a negative counter", ErrInvalidInput, name)
		}
	}
	return nil
}

// ParseTable decodes a persisted table. Anything but a JSON array of entries is rejected.
func ParseTable(data []byte) (models.Standings, error) {
	var table models.Standings
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: standings must be a JSON array of entries: %v", ErrInvalidInput, err)
	}
	if table == nil {
		table = models.Standings{}
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return table, nil
}

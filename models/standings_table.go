package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrScopeDivisionRequired = errors.New("division_id is required")
	ErrScopeAmbiguous        = errors.New("a standings table cannot belong to both a tournament and a cup")
	ErrScopeSeasonRequired   = errors.New("season is required for a season-long division table")
)

type ScopeKind string

const (
	ScopeDivision   ScopeKind = "division"
	ScopeTournament ScopeKind = "tournament"
	ScopeCup        ScopeKind = "cup"
)

// StandingsScope identifies the competition that owns a table.
type StandingsScope struct {
	DivisionID   string  `json:"division_id" db:"division_id"`
	TournamentID *string `json:"tournament_id,omitempty" db:"tournament_id"`
	CupID        *string `json:"cup_id,omitempty" db:"cup_id"`
	Season       *string `json:"season,omitempty" db:"season"`
}

func (s StandingsScope) Kind() ScopeKind {
	switch {
	case s.TournamentID != nil:
		return ScopeTournament
	case s.CupID != nil:
		return ScopeCup
	default:
		return ScopeDivision
	}
}

// Normalize trims identifiers and turns blank optional ones into nil.
func (s StandingsScope) Normalize() StandingsScope {
	s.DivisionID = strings.TrimSpace(s.DivisionID)
	s.TournamentID = trimmedOrNil(s.TournamentID)
	s.CupID = trimmedOrNil(s.CupID)
	s.Season = trimmedOrNil(s.Season)
	return s
}

func (s StandingsScope) Validate() error {
	if s.DivisionID == "" {
		return ErrScopeDivisionRequired
	}
	if s.TournamentID != nil && s.CupID != nil {
		return ErrScopeAmbiguous
	}
	if s.TournamentID == nil && s.CupID == nil && s.Season == nil {
		return ErrScopeSeasonRequired
	}
	return nil
}

type StandingsTable struct {
	ID string `json:"id" db:"id"`
	StandingsScope
	Standings   Standings `json:"standings" db:"standings"`
	SnapshotKey *string   `json:"-" db:"snapshot_key"`
	SnapshotURL *string   `json:"snapshot_url,omitempty" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

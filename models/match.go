package models

import "time"

// MatchResult is a completed match as seen by the standings engine.
type MatchResult struct {
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
}

// AppliedMatchResult is a match result that has been counted into a table.
type AppliedMatchResult struct {
	MatchID          string    `json:"match_id" db:"match_id"`
	StandingsTableID string    `json:"standings_table_id" db:"standings_table_id"`
	HomeTeam         string    `json:"home_team" db:"home_team"`
	AwayTeam         string    `json:"away_team" db:"away_team"`
	HomeScore        int       `json:"home_score" db:"home_score"`
	AwayScore        int       `json:"away_score" db:"away_score"`
	AppliedAt        time.Time `json:"applied_at" db:"applied_at"`
}

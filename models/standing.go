package models

import (
	"database/sql/driver"
	"encoding/json"
)

// StandingEntry is one team's aggregated record inside a standings table.
// Field names follow the JSON stored in the standings column.
type StandingEntry struct {
	TeamName       string `json:"teamName"`
	Played         int    `json:"played"`
	Won            int    `json:"won"`
	Drawn          int    `json:"drawn"`
	Lost           int    `json:"lost"`
	GoalsFor       int    `json:"goalsFor"`
	GoalsAgainst   int    `json:"goalsAgainst"`
	GoalDifference int    `json:"goalDifference"`
	Points         int    `json:"points"`
}

// Standings is the ordered table. It is stored as a JSON array in a text column;
// reads are decoded by the repository through standings.ParseTable.
type Standings []StandingEntry

func (s Standings) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

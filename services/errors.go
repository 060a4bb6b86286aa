package services

import "errors"

// Общие ошибки, используемые в сервисах и маппинге HTTP.
var (
	// Валидация
	ErrValidationFailed = errors.New("validation failed")
	ErrMatchIDRequired  = errors.New("match_id is required")
	ErrTeamNameRequired = errors.New("team name is required")

	// Конфликты
	ErrStandingsTableConflict = errors.New("a standings table already exists for this division and competition")
	ErrMatchAlreadyApplied    = errors.New("match result has already been applied")

	ErrStandingsTableNotFound = errors.New("standings table not found")
	ErrTeamNotInTable         = errors.New("team not found in standings table")

	ErrSnapshotsDisabled = errors.New("snapshot publishing is not configured")
)

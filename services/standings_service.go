package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Dosada05/league-standings/models"
	"github.com/Dosada05/league-standings/realtime"
	"github.com/Dosada05/league-standings/repositories"
	"github.com/Dosada05/league-standings/standings"
	"github.com/Dosada05/league-standings/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListLimit      = 20
	maxListLimit          = 100
	snapshotKeyPrefix     = "standings/"
	snapshotPublishLimit  = 4
	snapshotSchemaVersion = 1
)

// Notifier delivers messages to websocket rooms. *realtime.Hub implements it.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

type CreateStandingsTableInput struct {
	DivisionID   string   `json:"division_id"`
	TournamentID *string  `json:"tournament_id,omitempty"`
	CupID        *string  `json:"cup_id,omitempty"`
	Season       *string  `json:"season,omitempty"`
	Teams        []string `json:"teams,omitempty"`
}

type RecordMatchResultInput struct {
	MatchID   string `json:"match_id"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
}

type ListStandingsTablesFilter struct {
	DivisionID   *string
	Season       *string
	TournamentID *string
	CupID        *string
	Limit        int
	Offset       int
}

// StandingsSnapshot is the public document published to object storage.
type StandingsSnapshot struct {
	Version     int                   `json:"version"`
	TableID     string                `json:"table_id"`
	Scope       models.StandingsScope `json:"scope"`
	Standings   models.Standings      `json:"standings"`
	UpdatedAt   time.Time             `json:"updated_at"`
	PublishedAt time.Time             `json:"published_at"`
}

type StandingsService interface {
	CreateTable(ctx context.Context, input CreateStandingsTableInput) (*models.StandingsTable, error)
	GetTable(ctx context.Context, tableID string) (*models.StandingsTable, error)
	ListTables(ctx context.Context, filter ListStandingsTablesFilter) ([]*models.StandingsTable, error)
	RecordMatchResult(ctx context.Context, tableID string, input RecordMatchResultInput) (*models.StandingsTable, error)
	ListMatchResults(ctx context.Context, tableID string) ([]*models.AppliedMatchResult, error)
	GetStanding(ctx context.Context, tableID, teamName string) (*models.StandingEntry, error)
	GetLeaderboard(ctx context.Context, tableID string, n int) (models.Standings, error)
	RemoveTeam(ctx context.Context, tableID, teamName string) (bool, error)
	DeleteTable(ctx context.Context, tableID string) error
	PublishSnapshot(ctx context.Context, tableID string) (*models.StandingsTable, error)
	PublishStaleSnapshots(ctx context.Context, since time.Time) (int, error)
}

type standingsService struct {
	db         *sqlx.DB
	tableRepo  repositories.StandingsTableRepository
	resultRepo repositories.MatchResultRepository
	uploader   storage.FileUploader
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewStandingsService builds the service. uploader and notifier may be nil: snapshot
// publishing is then disabled and updates are not pushed.
func NewStandingsService(
	db *sqlx.DB,
	tableRepo repositories.StandingsTableRepository,
	resultRepo repositories.MatchResultRepository,
	uploader storage.FileUploader,
	notifier Notifier,
	logger *slog.Logger,
) StandingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &standingsService{
		db:         db,
		tableRepo:  tableRepo,
		resultRepo: resultRepo,
		uploader:   uploader,
		notifier:   notifier,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *standingsService) CreateTable(ctx context.Context, input CreateStandingsTableInput) (*models.StandingsTable, error) {
	scope := models.StandingsScope{
		DivisionID:   input.DivisionID,
		TournamentID: input.TournamentID,
		CupID:        input.CupID,
		Season:       input.Season,
	}.Normalize()
	if err := scope.Validate(); err != nil {
		return nil, validationError(err)
	}

	seeded, err := standings.NewTable(input.Teams...)
	if err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	table := &models.StandingsTable{
		ID:             uuid.NewString(),
		StandingsScope: scope,
		Standings:      seeded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.tableRepo.Create(ctx, nil, table); err != nil {
		return nil, handleRepositoryError(err, "create standings table for division %s", scope.DivisionID)
	}

	s.logger.InfoContext(ctx, "Standings table created",
		slog.String("table_id", table.ID),
		slog.String("division_id", scope.DivisionID),
		slog.String("scope", string(scope.Kind())),
		slog.Int("teams", len(seeded)),
	)
	return table, nil
}

func (s *standingsService) GetTable(ctx context.Context, tableID string) (*models.StandingsTable, error) {
	table, err := s.tableRepo.GetByID(ctx, nil, tableID)
	if err != nil {
		return nil, handleRepositoryError(err, "get standings table %s", tableID)
	}
	populateSnapshotURL(table, s.uploader)
	return table, nil
}

func (s *standingsService) ListTables(ctx context.Context, filter ListStandingsTablesFilter) ([]*models.StandingsTable, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	tables, err := s.tableRepo.List(ctx, nil, repositories.ListStandingsTablesFilter{
		DivisionID:   trimmedOrNil(filter.DivisionID),
		Season:       trimmedOrNil(filter.Season),
		TournamentID: trimmedOrNil(filter.TournamentID),
		CupID:        trimmedOrNil(filter.CupID),
		Limit:        limit,
		Offset:       max(filter.Offset, 0),
	})
	if err != nil {
		return nil, handleRepositoryError(err, "list standings tables")
	}
	for _, table := range tables {
		populateSnapshotURL(table, s.uploader)
	}
	return tables, nil
}

func (s *standingsService) RecordMatchResult(ctx context.Context, tableID string, input RecordMatchResultInput) (*models.StandingsTable, error) {
	matchID := strings.TrimSpace(input.MatchID)
	if matchID == "" {
		return nil, validationError(ErrMatchIDRequired)
	}
	result := models.MatchResult{
		HomeTeam:  strings.TrimSpace(input.HomeTeam),
		AwayTeam:  strings.TrimSpace(input.AwayTeam),
		HomeScore: input.HomeScore,
		AwayScore: input.AwayScore,
	}

	var table *models.StandingsTable
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		table, err = s.tableRepo.GetByIDForUpdate(ctx, tx, tableID)
		if err != nil {
			return handleRepositoryError(err, "lock standings table %s", tableID)
		}

		applied, err := s.resultRepo.Exists(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if applied {
			return fmt.Errorf("%w: match %s", ErrMatchAlreadyApplied, matchID)
		}

		updated, err := standings.ApplyMatchResult(table.Standings, result)
		if err != nil {
			return validationError(err)
		}

		now := s.now()
		if err := s.tableRepo.UpdateStandings(ctx, tx, tableID, updated, now); err != nil {
			return handleRepositoryError(err, "update standings table %s", tableID)
		}
		err = s.resultRepo.Create(ctx, tx, &models.AppliedMatchResult{
			MatchID:          matchID,
			StandingsTableID: tableID,
			HomeTeam:         result.HomeTeam,
			AwayTeam:         result.AwayTeam,
			HomeScore:        result.HomeScore,
			AwayScore:        result.AwayScore,
			AppliedAt:        now,
		})
		if err != nil {
			return handleRepositoryError(err, "record match %s", matchID)
		}

		table.Standings = updated
		table.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	populateSnapshotURL(table, s.uploader)
	s.logger.InfoContext(ctx, "Match result applied",
		slog.String("table_id", tableID),
		slog.String("match_id", matchID),
		slog.String("home_team", result.HomeTeam),
		slog.String("away_team", result.AwayTeam),
		slog.Int("home_score", result.HomeScore),
		slog.Int("away_score", result.AwayScore),
	)
	s.notify(realtime.MessageStandingsUpdated, table.ID, table)
	return table, nil
}

func (s *standingsService) ListMatchResults(ctx context.Context, tableID string) ([]*models.AppliedMatchResult, error) {
	if _, err := s.tableRepo.GetByID(ctx, nil, tableID); err != nil {
		return nil, handleRepositoryError(err, "get standings table %s", tableID)
	}
	results, err := s.resultRepo.ListByTable(ctx, nil, tableID)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *standingsService) GetStanding(ctx context.Context, tableID, teamName string) (*models.StandingEntry, error) {
	name := strings.TrimSpace(teamName)
	if name == "" {
		return nil, validationError(ErrTeamNameRequired)
	}
	table, err := s.tableRepo.GetByID(ctx, nil, tableID)
	if err != nil {
		return nil, handleRepositoryError(err, "get standings table %s", tableID)
	}

	entry, ok := standings.GetStanding(table.Standings, name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTeamNotInTable, name)
	}
	return &entry, nil
}

func (s *standingsService) GetLeaderboard(ctx context.Context, tableID string, n int) (models.Standings, error) {
	table, err := s.tableRepo.GetByID(ctx, nil, tableID)
	if err != nil {
		return nil, handleRepositoryError(err, "get standings table %s", tableID)
	}
	return standings.GetTopN(table.Standings, n), nil
}

func (s *standingsService) RemoveTeam(ctx context.Context, tableID, teamName string) (bool, error) {
	name := strings.TrimSpace(teamName)
	if name == "" {
		return false, validationError(ErrTeamNameRequired)
	}

	var (
		table   *models.StandingsTable
		removed bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		table, err = s.tableRepo.GetByIDForUpdate(ctx, tx, tableID)
		if err != nil {
			return handleRepositoryError(err, "lock standings table %s", tableID)
		}

		var updated models.Standings
		updated, removed = standings.RemoveTeam(table.Standings, name)
		if !removed {
			return nil
		}

		now := s.now()
		if err := s.tableRepo.UpdateStandings(ctx, tx, tableID, updated, now); err != nil {
			return handleRepositoryError(err, "update standings table %s", tableID)
		}
		table.Standings = updated
		table.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.logger.InfoContext(ctx, "Team removed from standings table", slog.String("table_id", tableID), slog.String("team", name))
		populateSnapshotURL(table, s.uploader)
		s.notify(realtime.MessageStandingsUpdated, table.ID, table)
	}
	return removed, nil
}

func (s *standingsService) DeleteTable(ctx context.Context, tableID string) error {
	table, err := s.tableRepo.GetByID(ctx, nil, tableID)
	if err != nil {
		return handleRepositoryError(err, "get standings table %s", tableID)
	}
	if err := s.tableRepo.Delete(ctx, nil, tableID); err != nil {
		return handleRepositoryError(err, "delete standings table %s", tableID)
	}

	if table.SnapshotKey != nil && s.uploader != nil {
		if err := s.uploader.Delete(ctx, *table.SnapshotKey); err != nil {
			// The table is gone either way; a stale public object is only logged.
			s.logger.WarnContext(ctx, "Failed to delete standings snapshot",
				slog.String("table_id", tableID),
				slog.String("snapshot_key", *table.SnapshotKey),
				slog.Any("error", err),
			)
		}
	}

	s.logger.InfoContext(ctx, "Standings table deleted", slog.String("table_id", tableID))
	s.notify(realtime.MessageStandingsDeleted, tableID, map[string]string{"id": tableID})
	return nil
}

func (s *standingsService) PublishSnapshot(ctx context.Context, tableID string) (*models.StandingsTable, error) {
	if s.uploader == nil {
		return nil, ErrSnapshotsDisabled
	}
	table, err := s.tableRepo.GetByID(ctx, nil, tableID)
	if err != nil {
		return nil, handleRepositoryError(err, "get standings table %s", tableID)
	}
	if err := s.publish(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// PublishStaleSnapshots republishes every table updated after since and returns how many were published.
func (s *standingsService) PublishStaleSnapshots(ctx context.Context, since time.Time) (int, error) {
	if s.uploader == nil {
		return 0, ErrSnapshotsDisabled
	}
	tables, err := s.tableRepo.ListUpdatedSince(ctx, nil, since)
	if err != nil {
		return 0, err
	}

	var published atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotPublishLimit)
	for _, table := range tables {
		g.Go(func() error {
			if err := s.publish(gctx, table); err != nil {
				return fmt.Errorf("table %s: %w", table.ID, err)
			}
			published.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(published.Load()), err
}

func (s *standingsService) publish(ctx context.Context, table *models.StandingsTable) error {
	body, err := json.Marshal(StandingsSnapshot{
		Version:     snapshotSchemaVersion,
		TableID:     table.ID,
		Scope:       table.StandingsScope,
		Standings:   table.Standings,
		UpdatedAt:   table.UpdatedAt,
		PublishedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for table %s: %w", table.ID, err)
	}

	key := snapshotKeyPrefix + table.ID + ".json"
	uploaded, err := s.uploader.Upload(ctx, key, storage.ContentTypeJSON, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if err := s.tableRepo.UpdateSnapshotKey(ctx, nil, table.ID, &key); err != nil {
		return handleRepositoryError(err, "store snapshot key for table %s", table.ID)
	}

	table.SnapshotKey = &key
	if uploaded.Location != "" {
		table.SnapshotURL = &uploaded.Location
	} else {
		populateSnapshotURL(table, s.uploader)
	}

	s.logger.InfoContext(ctx, "Standings snapshot published", slog.String("table_id", table.ID), slog.String("key", key))
	return nil
}

func (s *standingsService) notify(messageType, tableID string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	room := realtime.StandingsRoom(tableID)
	s.notifier.BroadcastToRoom(room, realtime.Message{
		Type:    messageType,
		RoomID:  room,
		Payload: payload,
	})
}

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidationFailed) || errors.Is(err, standings.ErrInvalidInput)
}

package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/league-standings/models"
	"github.com/jmoiron/sqlx"
)

var ErrMatchResultAlreadyApplied = errors.New("match result already applied")

type MatchResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.AppliedMatchResult) error
	Exists(ctx context.Context, exec SQLExecutor, matchID string) (bool, error)
	ListByTable(ctx context.Context, exec SQLExecutor, tableID string) ([]*models.AppliedMatchResult, error)
}

type sqlMatchResultRepository struct {
	db *sqlx.DB
}

func NewMatchResultRepository(db *sqlx.DB) MatchResultRepository {
	return &sqlMatchResultRepository{db: db}
}

func (r *sqlMatchResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *sqlMatchResultRepository) Create(ctx context.Context, exec SQLExecutor, result *models.AppliedMatchResult) error {
	executor := r.getExecutor(exec)
	if result.AppliedAt.IsZero() {
		result.AppliedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	query := `
		INSERT INTO applied_match_results
		    (match_id, standings_table_id, home_team, away_team, home_score, away_score, applied_at)
		VALUES (:match_id, :standings_table_id, :home_team, :away_team, :home_score, :away_score, :applied_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor, query, result); err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrMatchResultAlreadyApplied
		case isForeignKeyViolation(err):
			return ErrStandingsTableNotFound
		}
		return err
	}
	return nil
}

func (r *sqlMatchResultRepository) Exists(ctx context.Context, exec SQLExecutor, matchID string) (bool, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM applied_match_results WHERE match_id = ?`

	var count int
	if err := sqlx.GetContext(ctx, executor, &count, executor.Rebind(query), matchID); err != nil {
		return false, fmt.Errorf("failed to check match result %s: %w", matchID, err)
	}
	return count > 0, nil
}

func (r *sqlMatchResultRepository) ListByTable(ctx context.Context, exec SQLExecutor, tableID string) ([]*models.AppliedMatchResult, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT match_id, standings_table_id, home_team, away_team, home_score, away_score, applied_at
		FROM applied_match_results
		WHERE standings_table_id = ?
		ORDER BY applied_at ASC, match_id ASC`

	results := make([]*models.AppliedMatchResult, 0)
	if err := sqlx.SelectContext(ctx, executor, &results, executor.Rebind(query), tableID); err != nil {
		return nil, fmt.Errorf("failed to list match results for table %s: %w", tableID, err)
	}
	return results, nil
}

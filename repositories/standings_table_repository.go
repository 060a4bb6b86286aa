package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/league-standings/db"
	"github.com/Dosada05/league-standings/models"
	"github.com/Dosada05/league-standings/standings"
	"github.com/jmoiron/sqlx"
)

var (
	ErrStandingsTableNotFound     = errors.New("standings table not found")
	ErrStandingsTableConflict     = errors.New("a standings table already exists for this scope")
	ErrStandingsTableScopeInvalid = errors.New("standings table scope violates constraints")
)

type ListStandingsTablesFilter struct {
	DivisionID   *string
	Season       *string
	TournamentID *string
	CupID        *string
	Limit        int
	Offset       int
}

type StandingsTableRepository interface {
	Create(ctx context.Context, exec SQLExecutor, table *models.StandingsTable) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.StandingsTable, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.StandingsTable, error)
	List(ctx context.Context, exec SQLExecutor, filter ListStandingsTablesFilter) ([]*models.StandingsTable, error)
	ListUpdatedSince(ctx context.Context, exec SQLExecutor, since time.Time) ([]*models.StandingsTable, error)
	UpdateStandings(ctx context.Context, exec SQLExecutor, id string, entries models.Standings, updatedAt time.Time) error
	UpdateSnapshotKey(ctx context.Context, exec SQLExecutor, id string, snapshotKey *string) error
	Delete(ctx context.Context, exec SQLExecutor, id string) error
}

type sqlStandingsTableRepository struct {
	db *sqlx.DB
}

func NewStandingsTableRepository(db *sqlx.DB) StandingsTableRepository {
	return &sqlStandingsTableRepository{db: db}
}

func (r *sqlStandingsTableRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const standingsTableColumns = `id, division_id, tournament_id, cup_id, season, standings, snapshot_key, created_at, updated_at`

// standingsTableRow keeps the standings column raw so that stored tables are
// decoded and validated by the engine on every read.
type standingsTableRow struct {
	ID string `db:"id"`
	models.StandingsScope
	Standings   []byte    `db:"standings"`
	SnapshotKey *string   `db:"snapshot_key"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *standingsTableRow) toModel() (*models.StandingsTable, error) {
	table, err := standings.ParseTable(row.Standings)
	if err != nil {
		return nil, fmt.Errorf("stored standings of table %s: %w", row.ID, err)
	}
	return &models.StandingsTable{
		ID:             row.ID,
		StandingsScope: row.StandingsScope,
		Standings:      table,
		SnapshotKey:    row.SnapshotKey,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func rowsToModels(rows []standingsTableRow) ([]*models.StandingsTable, error) {
	tables := make([]*models.StandingsTable, 0, len(rows))
	for i := range rows {
		table, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (r *sqlStandingsTableRepository) Create(ctx context.Context, exec SQLExecutor, table *models.StandingsTable) error {
	executor := r.getExecutor(exec)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if table.CreatedAt.IsZero() {
		table.CreatedAt = now
	}
	if table.UpdatedAt.IsZero() {
		table.UpdatedAt = table.CreatedAt
	}
	if table.Standings == nil {
		table.Standings = models.Standings{}
	}

	query := `
		INSERT INTO standings_tables (` + standingsTableColumns + `)
		VALUES (:id, :division_id, :tournament_id, :cup_id, :season, :standings, :snapshot_key, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, executor, query, table)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrStandingsTableConflict
		case isCheckViolation(err):
			return ErrStandingsTableScopeInvalid
		}
		return err
	}
	return nil
}

func (r *sqlStandingsTableRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.StandingsTable, error) {
	return r.get(ctx, r.getExecutor(exec), id, false)
}

func (r *sqlStandingsTableRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.StandingsTable, error) {
	return r.get(ctx, r.getExecutor(exec), id, true)
}

func (r *sqlStandingsTableRepository) get(ctx context.Context, executor SQLExecutor, id string, forUpdate bool) (*models.StandingsTable, error) {
	query := `SELECT ` + standingsTableColumns + ` FROM standings_tables WHERE id = ?`
	// SQLite has no row locks; its single writer already serializes the transaction.
	if forUpdate && executor.DriverName() == db.DriverPostgres {
		query += ` FOR UPDATE`
	}

	var row standingsTableRow
	if err := sqlx.GetContext(ctx, executor, &row, executor.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStandingsTableNotFound
		}
		return nil, err
	}
	return row.toModel()
}

func (r *sqlStandingsTableRepository) List(ctx context.Context, exec SQLExecutor, filter ListStandingsTablesFilter) ([]*models.StandingsTable, error) {
	executor := r.getExecutor(exec)

	var (
		conditions []string
		args       []interface{}
	)
	if filter.DivisionID != nil {
		conditions = append(conditions, "division_id = ?")
		args = append(args, *filter.DivisionID)
	}
	if filter.Season != nil {
		conditions = append(conditions, "season = ?")
		args = append(args, *filter.Season)
	}
	if filter.TournamentID != nil {
		conditions = append(conditions, "tournament_id = ?")
		args = append(args, *filter.TournamentID)
	}
	if filter.CupID != nil {
		conditions = append(conditions, "cup_id = ?")
		args = append(args, *filter.CupID)
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT ` + standingsTableColumns + ` FROM standings_tables`)
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id ASC")
	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			queryBuilder.WriteString(" OFFSET ?")
			args = append(args, filter.Offset)
		}
	}

	var rows []standingsTableRow
	if err := sqlx.SelectContext(ctx, executor, &rows, executor.Rebind(queryBuilder.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list standings tables: %w", err)
	}
	return rowsToModels(rows)
}

func (r *sqlStandingsTableRepository) ListUpdatedSince(ctx context.Context, exec SQLExecutor, since time.Time) ([]*models.StandingsTable, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + standingsTableColumns + ` FROM standings_tables WHERE updated_at > ? ORDER BY updated_at ASC`

	var rows []standingsTableRow
	if err := sqlx.SelectContext(ctx, executor, &rows, executor.Rebind(query), since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list standings tables updated since %s: %w", since.Format(time.RFC3339), err)
	}
	return rowsToModels(rows)
}

func (r *sqlStandingsTableRepository) UpdateStandings(ctx context.Context, exec SQLExecutor, id string, entries models.Standings, updatedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE standings_tables SET standings = ?, updated_at = ? WHERE id = ?`

	result, err := executor.ExecContext(ctx, executor.Rebind(query), entries, updatedAt.UTC(), id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStandingsTableNotFound)
}

func (r *sqlStandingsTableRepository) UpdateSnapshotKey(ctx context.Context, exec SQLExecutor, id string, snapshotKey *string) error {
	executor := r.getExecutor(exec)
	query := `UPDATE standings_tables SET snapshot_key = ? WHERE id = ?`

	result, err := executor.ExecContext(ctx, executor.Rebind(query), snapshotKey, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStandingsTableNotFound)
}

func (r *sqlStandingsTableRepository) Delete(ctx context.Context, exec SQLExecutor, id string) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM standings_tables WHERE id = ?`

	result, err := executor.ExecContext(ctx, executor.Rebind(query), id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStandingsTableNotFound)
}

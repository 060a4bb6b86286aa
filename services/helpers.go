package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/league-standings/models"
	"github.com/Dosada05/league-standings/repositories"
	"github.com/Dosada05/league-standings/storage"
	"github.com/jmoiron/sqlx"
)

// withTx runs fn in a transaction, committing when it returns nil.
func (s *standingsService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (txErr error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.ErrorContext(ctx, "Error during rollback", "error", rbErr, "original_error", txErr)
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(tx)
}

// handleRepositoryError переводит ошибки репозитория в ошибки сервиса.
func handleRepositoryError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, repositories.ErrStandingsTableNotFound):
		return fmt.Errorf("%w: %s", ErrStandingsTableNotFound, msg)
	case errors.Is(err, repositories.ErrStandingsTableConflict):
		return fmt.Errorf("%w: %s", ErrStandingsTableConflict, msg)
	case errors.Is(err, repositories.ErrStandingsTableScopeInvalid):
		return fmt.Errorf("%w: %s: %w", ErrValidationFailed, msg, models.ErrScopeAmbiguous)
	case errors.Is(err, repositories.ErrMatchResultAlreadyApplied):
		return fmt.Errorf("%w: %s", ErrMatchAlreadyApplied, msg)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// validationError keeps both ErrValidationFailed and the cause (e.g. standings.ErrInvalidInput) in the chain.
func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidationFailed, err)
}

func populateSnapshotURL(table *models.StandingsTable, uploader storage.FileUploader) {
	if table != nil && table.SnapshotKey != nil && *table.SnapshotKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*table.SnapshotKey)
		if url != "" {
			table.SnapshotURL = &url
		}
	}
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

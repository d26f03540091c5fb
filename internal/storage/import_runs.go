package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/offer-importer/internal/domain"
)

const importRunColumns = `
	run_id, connection_id, batch_size, status, worker_id,
	imported, errors, failed_offers, error_message,
	retry_count, max_retries, created_at, started_at,
	last_heartbeat_at, completed_at, updated_at
`

// CreateImportRun inserts a PENDING run.
func (s *Storage) CreateImportRun(ctx context.Context, run *domain.ImportRun) error {
	query := `
		INSERT INTO import_runs (
			run_id, connection_id, batch_size, status,
			max_retries, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.ConnectionID,
		run.BatchSize,
		run.Status,
		run.MaxRetries,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	return nil
}

// GetImportRun loads one run.
func (s *Storage) GetImportRun(ctx context.Context, runID string) (*domain.ImportRun, error) {
	query := `SELECT ` + importRunColumns + ` FROM import_runs WHERE run_id = $1`

	var run domain.ImportRun
	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrImportRunNotFound
		}
		return nil, fmt.Errorf("failed to get import run: %w", err)
	}
	return &run, nil
}

// ClaimImportRun moves a PENDING run to RUNNING for workerID. It returns
// ErrImportRunAlreadyClaimed when the run is missing or not PENDING.
func (s *Storage) ClaimImportRun(ctx context.Context, runID, workerID string) (*domain.ImportRun, error) {
	query := `
		UPDATE import_runs
		SET status = $1,
			worker_id = $2,
			started_at = NOW(),
			last_heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE run_id = $3
		  AND status = $4
		RETURNING ` + importRunColumns

	var run domain.ImportRun
	err := s.db.GetContext(ctx, &run, query, domain.RunStatusRunning, workerID, runID, domain.RunStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim import run - already claimed or not found",
				slog.String("run_id", runID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrImportRunAlreadyClaimed
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to claim import run: %w", err))
	}

	s.logger.Info("Import run claimed",
		slog.String("run_id", runID),
		slog.String("worker_id", workerID),
		slog.Int64("connection_id", run.ConnectionID),
	)
	return &run, nil
}

// CompleteImportRun stores the result of a finished run.
func (s *Storage) CompleteImportRun(ctx context.Context, runID string, result *domain.ImportResult) error {
	failed, err := json.Marshal(result.FailedOffers)
	if err != nil {
		return fmt.Errorf("failed to marshal failed offers: %w", err)
	}

	query := `
		UPDATE import_runs
		SET status = $1,
			imported = $2,
			errors = $3,
			failed_offers = $4,
			error_message = NULL,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE run_id = $5
	`
	if _, err := s.db.ExecContext(ctx, query, domain.RunStatusCompleted, result.Imported, result.Errors, string(failed), runID); err != nil {
		return fmt.Errorf("failed to complete import run: %w", err)
	}

	s.logger.Info("Import run status updated",
		slog.String("run_id", runID),
		slog.String("status", domain.RunStatusCompleted),
	)
	return nil
}

// FailImportRun marks a run FAILED with errorMsg.
func (s *Storage) FailImportRun(ctx context.Context, runID, errorMsg string) error {
	query := `
		UPDATE import_runs
		SET status = $1,
			error_message = $2,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE run_id = $3
	`
	if _, err := s.db.ExecContext(ctx, query, domain.RunStatusFailed, errorMsg, runID); err != nil {
		return fmt.Errorf("failed to fail import run: %w", err)
	}

	s.logger.Info("Import run status updated",
		slog.String("run_id", runID),
		slog.String("status", domain.RunStatusFailed),
	)
	return nil
}

// RequeueImportRun returns a RUNNING run to PENDING and counts the retry, so
// the redelivered message can claim it again.
func (s *Storage) RequeueImportRun(ctx context.Context, runID, errorMsg string) error {
	query := `
		UPDATE import_runs
		SET status = $1,
			worker_id = NULL,
			error_message = $2,
			retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE run_id = $3
		  AND status = $4
	`
	if _, err := s.db.ExecContext(ctx, query, domain.RunStatusPending, errorMsg, runID, domain.RunStatusRunning); err != nil {
		return fmt.Errorf("failed to requeue import run: %w", err)
	}
	return nil
}

// UpdateImportRunHeartbeat touches last_heartbeat_at of a RUNNING run.
func (s *Storage) UpdateImportRunHeartbeat(ctx context.Context, runID string) error {
	query := `
		UPDATE import_runs
		SET last_heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE run_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, runID, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update import run heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Import run heartbeat update - no rows affected (run may not be running)",
			slog.String("run_id", runID),
		)
	}
	return nil
}

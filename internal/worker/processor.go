package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/shared/logger"
)

const statusUpdateTimeout = 10 * time.Second

// processRun claims a run, executes the import with timeout and heartbeat,
// and records the outcome. The returned error drives the ACK/NACK decision.
func (w *Worker) processRun(ctx context.Context, msg *runMessage) error {
	log := w.logger.With(slog.String("run_id", msg.RunID))

	// PENDING → RUNNING
	run, err := w.store.ClaimImportRun(ctx, msg.RunID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrImportRunAlreadyClaimed) {
			log.Warn("Import run already claimed, skipping")
		}
		return fmt.Errorf("failed to claim import run: %w", err)
	}
	log = log.With(slog.Int64("connection_id", run.ConnectionID))

	conn, err := w.store.GetConnection(ctx, run.ConnectionID)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			w.failRun(log, run, err)
			return err
		}
		return w.handleFailure(log, run, domain.NewRetryableError(err))
	}

	runCtx := logger.IntoContext(ctx, w.logger.With(slog.String("run_id", run.RunID)))
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.jobTimeout)
		defer cancel()
	}

	heartbeatDone := make(chan struct{})
	go w.sendHeartbeat(runCtx, log, run.RunID, heartbeatDone)
	defer close(heartbeatDone)

	result, err := w.importer.Process(runCtx, conn, run.BatchSize)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = domain.NewRetryableError(err)
		}
		return w.handleFailure(log, run, err)
	}

	statusCtx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	if updateErr := w.store.CompleteImportRun(statusCtx, run.RunID, result); updateErr != nil {
		// The offers are stored; redelivery would only repeat the import.
		log.Error("Failed to mark import run COMPLETED", slog.String("error", updateErr.Error()))
	}

	log.Info("Import run finished",
		slog.Int("imported", result.Imported),
		slog.Int("errors", result.Errors),
	)
	return nil
}

// handleFailure requeues retryable failures while retries remain and fails
// the run otherwise.
func (w *Worker) handleFailure(log *slog.Logger, run *domain.ImportRun, err error) error {
	log.Error("Import run execution failed",
		slog.String("error", err.Error()),
		slog.Int("retry_count", run.RetryCount),
		slog.Int("max_retries", run.MaxRetries),
	)

	if !domain.IsRetryable(err) {
		w.failRun(log, run, err)
		return err
	}

	if run.RetryCount >= run.MaxRetries {
		log.Warn("Import run exceeded max retries")
		w.failRun(log, run, err)
		return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, err)
	}

	statusCtx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	if updateErr := w.store.RequeueImportRun(statusCtx, run.RunID, err.Error()); updateErr != nil {
		log.Error("Failed to requeue import run", slog.String("error", updateErr.Error()))
		w.failRun(log, run, err)
		return fmt.Errorf("failed to requeue import run: %w", updateErr)
	}

	log.Info("Import run will be retried", slog.Int("retry_count", run.RetryCount+1))
	return err
}

func (w *Worker) failRun(log *slog.Logger, run *domain.ImportRun, cause error) {
	statusCtx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	if err := w.store.FailImportRun(statusCtx, run.RunID, cause.Error()); err != nil {
		log.Error("Failed to mark import run FAILED", slog.String("error", err.Error()))
	}
}

// sendHeartbeat periodically updates the run's heartbeat timestamp
func (w *Worker) sendHeartbeat(ctx context.Context, log *slog.Logger, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateImportRunHeartbeat(ctx, runID); err != nil {
				log.Warn("Failed to update import run heartbeat", slog.String("error", err.Error()))
			} else {
				log.Debug("Import run heartbeat updated")
			}
		}
	}
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/google/uuid"
)

// scheduleLoop periodically queues an import run for every connection whose
// sync frequency has elapsed.
func (w *Worker) scheduleLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.scheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.runSchedule(ctx)
		}
	}
}

// runSchedule returns the number of runs it queued.
func (w *Worker) runSchedule(ctx context.Context) int {
	conns, err := w.store.ListSchedulableConnections(ctx)
	if err != nil {
		w.logger.Error("Failed to list schedulable connections", slog.String("error", err.Error()))
		return 0
	}

	now := w.now().UTC()
	queued := 0
	for i := range conns {
		conn := &conns[i]
		if !conn.DueForSync(now) {
			continue
		}
		if w.queueRun(ctx, conn, now) {
			queued++
		}
	}

	if queued > 0 {
		w.logger.Info("Scheduled imports queued", slog.Int("queued", queued))
	}
	return queued
}

func (w *Worker) queueRun(ctx context.Context, conn *domain.Connection, now time.Time) bool {
	log := w.logger.With(slog.Int64("connection_id", conn.ID))

	run := domain.NewImportRun(uuid.New().String(), conn.ID, w.batchSize, w.maxRetries, now)
	if err := w.store.CreateImportRun(ctx, run); err != nil {
		log.Error("Failed to create scheduled import run", slog.String("error", err.Error()))
		return false
	}

	if err := w.publisher.PublishJSON(ctx, domain.ImportRunMessage{RunID: run.RunID}); err != nil {
		log.Error("Failed to publish scheduled import run",
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
		if ferr := w.store.FailImportRun(ctx, run.RunID, "failed to queue: "+err.Error()); ferr != nil {
			log.Error("Failed to mark import run failed", slog.String("error", ferr.Error()))
		}
		return false
	}

	log.Info("Scheduled import queued",
		slog.String("run_id", run.RunID),
		slog.String("frequency", conn.Frequency),
	)
	return true
}

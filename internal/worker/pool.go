package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/offer-importer/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	log := w.logger.With(slog.String("worker_name", workerName))
	log.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			log.Info("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			log.Info("Worker goroutine stopping - context canceled")
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				log.Info("Worker goroutine stopping - jobsChan closed")
				return
			}

			runLog := log.With(slog.String("run_id", msg.RunID))
			runLog.Info("Worker received import run",
				slog.Uint64("delivery_tag", msg.Delivery.DeliveryTag),
			)

			err := w.processRun(ctx, msg)
			if err != nil {
				runLog.Error("Import run failed", slog.String("error", err.Error()))

				requeue := shouldRequeue(err)
				if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
					runLog.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
				} else {
					runLog.Info("Message NACKed", slog.Bool("requeue", requeue))
				}
				continue
			}

			if ackErr := msg.Delivery.Ack(false); ackErr != nil {
				runLog.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
			} else {
				runLog.Info("Import run completed successfully")
			}
		}
	}
}

// shouldRequeue reports whether a failed delivery goes back on the queue.
func shouldRequeue(err error) bool {
	switch {
	case errors.Is(err, domain.ErrImportRunAlreadyClaimed),
		errors.Is(err, domain.ErrMaxRetriesExceeded):
		return false
	}
	return domain.IsRetryable(err)
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Store is the persistence the worker needs.
type Store interface {
	GetConnection(ctx context.Context, id int64) (*domain.Connection, error)
	ClaimImportRun(ctx context.Context, runID, workerID string) (*domain.ImportRun, error)
	CompleteImportRun(ctx context.Context, runID string, result *domain.ImportResult) error
	FailImportRun(ctx context.Context, runID, errorMsg string) error
	RequeueImportRun(ctx context.Context, runID, errorMsg string) error
	UpdateImportRunHeartbeat(ctx context.Context, runID string) error
	UpdateStatusByGoals(ctx context.Context, connectionID *int64) (domain.StatusSweepStats, error)
	ListSchedulableConnections(ctx context.Context) ([]domain.Connection, error)
	CreateImportRun(ctx context.Context, run *domain.ImportRun) error
}

// Importer executes one import.
type Importer interface {
	Process(ctx context.Context, conn *domain.Connection, batchSize int) (*domain.ImportResult, error)
}

// Consumer delivers queued import runs.
type Consumer interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
}

// Publisher queues import runs created by the scheduler.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             Store
	Importer          Importer
	Consumer          Consumer
	WorkerID          string
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration

	// Scheduled imports run only when Publisher is set and ScheduleInterval > 0.
	Publisher        Publisher
	ScheduleInterval time.Duration
	BatchSize        int
	MaxRetries       int
}

// runMessage is one delivery handed from the dispatcher to the pool.
type runMessage struct {
	RunID    string
	Delivery amqp.Delivery
}

// Worker consumes import runs and executes them with a bounded pool.
type Worker struct {
	logger            *slog.Logger
	store             Store
	importer          Importer
	consumer          Consumer
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	publisher         Publisher
	scheduleInterval  time.Duration
	batchSize         int
	maxRetries        int
	now               func() time.Time

	jobsChan chan *runMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", workerID)),
		store:             cfg.Store,
		importer:          cfg.Importer,
		consumer:          cfg.Consumer,
		workerID:          workerID,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		sweepInterval:     cfg.SweepInterval,
		publisher:         cfg.Publisher,
		scheduleInterval:  cfg.ScheduleInterval,
		batchSize:         cfg.BatchSize,
		maxRetries:        cfg.MaxRetries,
		now:               time.Now,
		jobsChan:          make(chan *runMessage),
		stopChan:          make(chan struct{}),
	}
}

// ID returns the worker id stamped on claimed runs.
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes import runs until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("sweep_interval", w.sweepInterval),
		slog.Duration("schedule_interval", w.scheduleInterval),
	)

	deliveries, err := w.consumer.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	if w.sweepInterval > 0 {
		w.wg.Add(1)
		go w.sweepLoop(ctx)
	}

	if w.scheduleInterval > 0 && w.publisher != nil {
		w.wg.Add(1)
		go w.scheduleLoop(ctx)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// sweepLoop periodically moves active offers that reached their goal or
// budget out of StatusActive.
func (w *Worker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

func (w *Worker) runSweep(ctx context.Context) {
	stats, err := w.store.UpdateStatusByGoals(ctx, nil)
	if err != nil {
		w.logger.Error("Status sweep failed", slog.String("error", err.Error()))
		return
	}
	if stats.GoalCompleted > 0 || stats.BudgetCompleted > 0 {
		w.logger.Info("Status sweep updated offers",
			slog.Int64("goal_completed", stats.GoalCompleted),
			slog.Int64("budget_completed", stats.BudgetCompleted),
		)
	}
}

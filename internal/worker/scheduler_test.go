package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []domain.ImportRunMessage
	err      error
}

func (f *fakePublisher) PublishJSON(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, v.(domain.ImportRunMessage))
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

var scheduleNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func newScheduleWorker(store Store, pub Publisher, interval time.Duration) *Worker {
	w := NewWorker(&Config{
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:            store,
		Importer:         &fakeImporter{},
		Consumer:         &fakeConsumer{deliveries: make(chan amqp.Delivery)},
		Publisher:        pub,
		ScheduleInterval: interval,
		BatchSize:        25,
		MaxRetries:       2,
	})
	w.now = func() time.Time { return scheduleNow }
	return w
}

func syncedAgo(d time.Duration) *time.Time {
	ts := scheduleNow.Add(-d)
	return &ts
}

func TestRunSchedule_QueuesDueConnections(t *testing.T) {
	store := newFakeStore()
	store.schedulable = []domain.Connection{
		{ID: 1, Frequency: domain.FrequencyHourly, Status: domain.ConnectionStatusActive, LastSync: syncedAgo(2 * time.Hour)},
		{ID: 2, Frequency: domain.FrequencyDaily, Status: domain.ConnectionStatusActive, LastSync: syncedAgo(time.Hour)},
		{ID: 3, Frequency: domain.FrequencyWeekly, Status: domain.ConnectionStatusPending},
		{ID: 4, Frequency: domain.FrequencyHourly, Status: domain.ConnectionStatusError},
	}
	pub := &fakePublisher{}
	w := newScheduleWorker(store, pub, time.Minute)

	assert.Equal(t, 2, w.runSchedule(context.Background()))

	require.Len(t, pub.messages, 2)
	queued := map[int64]bool{}
	for _, msg := range pub.messages {
		run := store.runs[msg.RunID]
		require.NotNil(t, run)
		assert.Equal(t, domain.RunStatusPending, run.Status)
		assert.Equal(t, 25, run.BatchSize)
		assert.Equal(t, 2, run.MaxRetries)
		assert.True(t, scheduleNow.Equal(run.CreatedAt))
		queued[run.ConnectionID] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 3: true}, queued)
}

func TestRunSchedule_PublishFailureFailsRun(t *testing.T) {
	store := newFakeStore()
	store.schedulable = []domain.Connection{
		{ID: 1, Frequency: domain.FrequencyHourly, Status: domain.ConnectionStatusActive},
	}
	w := newScheduleWorker(store, &fakePublisher{err: errors.New("channel closed")}, time.Minute)

	assert.Zero(t, w.runSchedule(context.Background()))

	require.Len(t, store.failed, 1)
	for runID, msg := range store.failed {
		assert.Equal(t, domain.RunStatusFailed, store.status(runID))
		assert.Contains(t, msg, "channel closed")
	}
}

func TestRunSchedule_StoreErrors(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")
	pub := &fakePublisher{}
	w := newScheduleWorker(store, pub, time.Minute)

	assert.Zero(t, w.runSchedule(context.Background()))

	store.listErr = nil
	store.createErr = errors.New("disk full")
	store.schedulable = []domain.Connection{{ID: 1, Frequency: domain.FrequencyDaily, Status: domain.ConnectionStatusActive}}
	assert.Zero(t, w.runSchedule(context.Background()))
	assert.Zero(t, pub.count())
}

func TestWorker_ScheduleLoop(t *testing.T) {
	store := newFakeStore()
	store.schedulable = []domain.Connection{
		{ID: 1, Frequency: domain.FrequencyHourly, Status: domain.ConnectionStatusActive},
	}
	pub := &fakePublisher{}
	w := newScheduleWorker(store, pub, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	w.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	body, err := json.Marshal(pub.messages[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"run_id"`)
}

func TestWorker_ScheduleLoopDisabledWithoutPublisher(t *testing.T) {
	store := newFakeStore()
	store.schedulable = []domain.Connection{
		{ID: 1, Frequency: domain.FrequencyHourly, Status: domain.ConnectionStatusActive},
	}
	w := newScheduleWorker(store, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	w.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.runs)
}

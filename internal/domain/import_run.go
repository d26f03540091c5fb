package domain

import "time"

// Import run status constants
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// ImportRun is one queued execution of the importer for a connection.
type ImportRun struct {
	RunID           string     `db:"run_id" json:"run_id"`
	ConnectionID    int64      `db:"connection_id" json:"connection_id"`
	BatchSize       int        `db:"batch_size" json:"batch_size"`
	Status          string     `db:"status" json:"status"`
	WorkerID        *string    `db:"worker_id" json:"worker_id,omitempty"`
	Imported        int        `db:"imported" json:"imported"`
	Errors          int        `db:"errors" json:"errors"`
	FailedOffers    []byte     `db:"failed_offers" json:"-"`
	ErrorMessage    *string    `db:"error_message" json:"error_message,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	MaxRetries      int        `db:"max_retries" json:"max_retries"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time `db:"last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NewImportRun returns a PENDING run for a connection.
func NewImportRun(runID string, connectionID int64, batchSize, maxRetries int, now time.Time) *ImportRun {
	return &ImportRun{
		RunID:        runID,
		ConnectionID: connectionID,
		BatchSize:    batchSize,
		Status:       RunStatusPending,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ImportRunMessage is the RabbitMQ payload that points a worker at a run.
type ImportRunMessage struct {
	RunID string `json:"run_id"`
}

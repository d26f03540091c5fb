// Package storage is the PostgreSQL data layer for connections, mappings,
// offers, response caches and import runs.
package storage

import (
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying pool for health checks.
func (s *Storage) DB() *sqlx.DB {
	return s.db
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const connectionColumns = `
	id,
	COALESCE(name, '') AS name,
	"UserId",
	"clientId",
	COALESCE(url, '') AS url,
	COALESCE("Method", '') AS "Method",
	COALESCE("Headers", '') AS "Headers",
	COALESCE("Body", '') AS "Body",
	COALESCE("SourceType", '') AS "SourceType",
	COALESCE("Endpoint", '') AS "Endpoint",
	COALESCE(frequency, '') AS frequency,
	COALESCE(status, '') AS status,
	"lastSync",
	COALESCE("importedOffers", 0) AS "importedOffers",
	COALESCE("errorCount", 0) AS "errorCount"
`

// GetConnection loads one connection.
func (s *Storage) GetConnection(ctx context.Context, id int64) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM "Connections" WHERE id = $1`

	var conn domain.Connection
	if err := s.db.GetContext(ctx, &conn, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// ListConnections returns every connection ordered by id.
func (s *Storage) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM "Connections" ORDER BY id`

	conns := []domain.Connection{}
	if err := s.db.SelectContext(ctx, &conns, query); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// CreateConnection inserts conn as pending and sets its id. An empty
// frequency is stored as manual.
func (s *Storage) CreateConnection(ctx context.Context, conn *domain.Connection) error {
	if conn.Frequency == "" {
		conn.Frequency = domain.FrequencyManual
	}
	conn.Status = domain.ConnectionStatusPending

	query := `
		INSERT INTO "Connections" (
			name, "UserId", "clientId", url, "Method",
			"Headers", "Body", "SourceType", "Endpoint",
			frequency, status
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
		RETURNING id
	`

	err := s.db.QueryRowxContext(ctx, query,
		conn.Name,
		conn.UserID,
		conn.ClientID,
		conn.URL,
		conn.Method,
		conn.Headers,
		conn.Body,
		conn.SourceType,
		conn.Endpoint,
		conn.Frequency,
		conn.Status,
	).Scan(&conn.ID)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// UpdateConnection overwrites every editable column of conn. Sync bookkeeping
// columns are left alone.
func (s *Storage) UpdateConnection(ctx context.Context, conn *domain.Connection) error {
	if conn.Frequency == "" {
		conn.Frequency = domain.FrequencyManual
	}

	query := `
		UPDATE "Connections"
		SET name = $1,
			"UserId" = $2,
			"clientId" = $3,
			url = $4,
			"Method" = $5,
			"Headers" = $6,
			"Body" = $7,
			"SourceType" = $8,
			"Endpoint" = $9,
			frequency = $10,
			"UpdatedAt" = NOW()
		WHERE id = $11
	`

	res, err := s.db.ExecContext(ctx, query,
		conn.Name,
		conn.UserID,
		conn.ClientID,
		conn.URL,
		conn.Method,
		conn.Headers,
		conn.Body,
		conn.SourceType,
		conn.Endpoint,
		conn.Frequency,
		conn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// DeleteConnection removes a connection and its mappings. Offers, cached
// responses and import runs follow through ON DELETE CASCADE.
func (s *Storage) DeleteConnection(ctx context.Context, id int64) error {
	return postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "ClientFieldMappings" WHERE "ConnectionId" = $1`, id); err != nil {
			return fmt.Errorf("failed to delete mappings: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM "Connections" WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrConnectionNotFound
		}
		return nil
	})
}

// UpdateConnectionSync records the sync state of a connection. A nil result
// only changes the status; otherwise lastSync and the counters are set too.
func (s *Storage) UpdateConnectionSync(ctx context.Context, connectionID int64, status string, result *domain.ImportResult) error {
	var (
		res sql.Result
		err error
	)
	if result == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE "Connections" SET status = $1, "UpdatedAt" = NOW() WHERE id = $2`,
			status, connectionID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE "Connections"
			SET status = $1,
				"lastSync" = NOW(),
				"importedOffers" = $2,
				"errorCount" = $3,
				"UpdatedAt" = NOW()
			WHERE id = $4
		`, status, result.Imported, result.Errors, connectionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update connection sync: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// ListSchedulableConnections returns connections with a sync frequency that
// are not in error and have no pending or running import.
func (s *Storage) ListSchedulableConnections(ctx context.Context) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM "Connections" c
		WHERE COALESCE(c.frequency, '') NOT IN ('', $1)
		  AND COALESCE(c.status, '') NOT IN ('', $2)
		  AND NOT EXISTS (
			SELECT 1 FROM import_runs r
			WHERE r.connection_id = c.id AND r.status IN ($3, $4)
		  )
		ORDER BY c.id`

	conns := []domain.Connection{}
	err := s.db.SelectContext(ctx, &conns, query,
		domain.FrequencyManual,
		domain.ConnectionStatusError,
		domain.RunStatusPending,
		domain.RunStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedulable connections: %w", err)
	}
	return conns, nil
}

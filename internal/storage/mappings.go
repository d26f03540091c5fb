package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// ListMappings returns the mappings of a connection.
func (s *Storage) ListMappings(ctx context.Context, connectionID int64) ([]domain.FieldMapping, error) {
	query := `
		SELECT "ConnectionId", "ClientId", "SourceField", "TargetField",
			COALESCE("TransformationType", 'STRING') AS "TransformationType",
			"TransformationRule"
		FROM "ClientFieldMappings"
		WHERE "ConnectionId" = $1
		ORDER BY "SourceField", "TargetField"
	`

	mappings := []domain.FieldMapping{}
	if err := s.db.SelectContext(ctx, &mappings, query, connectionID); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

// PrepareMappings validates mappings for conn and stamps ConnectionId and a
// ClientId on each. Duplicate (ClientId, SourceField) keys are rejected.
func PrepareMappings(conn *domain.Connection, mappings []domain.FieldMapping) ([]domain.FieldMapping, error) {
	out := make([]domain.FieldMapping, 0, len(mappings))
	seen := make(map[string]bool, len(mappings))

	for i := range mappings {
		m := mappings[i]
		if err := m.Validate(); err != nil {
			return nil, err
		}
		m.ConnectionID = conn.ID

		if m.ClientID == nil {
			owner, ok := conn.OwnerClientID()
			if !ok {
				return nil, fmt.Errorf("%w: connection %d has neither clientId nor UserId", domain.ErrMissingClientID, conn.ID)
			}
			m.ClientID = &owner
		}

		key := fmt.Sprintf("%d|%s", *m.ClientID, m.SourceField)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate source_field %q", domain.ErrInvalidMapping, m.SourceField)
		}
		seen[key] = true

		out = append(out, m)
	}
	return out, nil
}

// ReplaceMappings swaps the whole mapping set of conn inside one transaction,
// so readers see either the old set or the new one.
func (s *Storage) ReplaceMappings(ctx context.Context, conn *domain.Connection, mappings []domain.FieldMapping) ([]domain.FieldMapping, error) {
	prepared, err := PrepareMappings(conn, mappings)
	if err != nil {
		return nil, err
	}

	err = postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "ClientFieldMappings" WHERE "ConnectionId" = $1`, conn.ID); err != nil {
			return fmt.Errorf("failed to delete mappings: %w", err)
		}

		insert := `
			INSERT INTO "ClientFieldMappings" (
				"ConnectionId", "ClientId", "SourceField", "TargetField",
				"TransformationType", "TransformationRule"
			) VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, m := range prepared {
			if _, err := tx.ExecContext(ctx, insert,
				m.ConnectionID,
				m.ClientID,
				m.SourceField,
				m.TargetField,
				string(m.TransformationType),
				m.TransformationRule,
			); err != nil {
				return fmt.Errorf("failed to insert mapping %q: %w", m.SourceField, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Mappings replaced",
		slog.Int64("connection_id", conn.ID),
		slog.Int("count", len(prepared)),
	)
	return prepared, nil
}

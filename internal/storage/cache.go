package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuongbtq/offer-importer/internal/domain"
)

// SaveResponseCache replaces the cached response of a connection.
func (s *Storage) SaveResponseCache(ctx context.Context, cache *domain.ResponseCache) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal response cache: %w", err)
	}

	query := `
		INSERT INTO "ApiResponseCache" ("ConnectionId", "CacheData", "CreatedAt")
		VALUES ($1, $2, NOW())
		ON CONFLICT ("ConnectionId") DO UPDATE SET
			"CacheData" = EXCLUDED."CacheData",
			"CreatedAt" = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, cache.ConnectionID, string(data)); err != nil {
		return fmt.Errorf("failed to save response cache: %w", err)
	}
	return nil
}

// GetResponseCache loads the cached response of a connection.
func (s *Storage) GetResponseCache(ctx context.Context, connectionID int64) (*domain.ResponseCache, error) {
	query := `
		SELECT "CacheData"
		FROM "ApiResponseCache"
		WHERE "ConnectionId" = $1
		ORDER BY "CreatedAt" DESC
		LIMIT 1
	`

	var data string
	if err := s.db.QueryRowxContext(ctx, query, connectionID).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get response cache: %w", err)
	}

	var cache domain.ResponseCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, fmt.Errorf("failed to decode response cache: %w", err)
	}
	return &cache, nil
}

// Package importer runs the fetch, map, upsert pipeline for one connection.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/offer-importer/internal/detector"
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/internal/lock"
	"github.com/cuongbtq/offer-importer/internal/mapping"
	"github.com/cuongbtq/offer-importer/internal/source"
	"github.com/cuongbtq/offer-importer/shared/logger"
	"github.com/tidwall/gjson"
)

const (
	DefaultBatchSize = 100
	unlockTimeout    = 5 * time.Second
	syncTimeout      = 5 * time.Second
)

// Store is the persistence the importer needs.
type Store interface {
	ListMappings(ctx context.Context, connectionID int64) ([]domain.FieldMapping, error)
	ReplaceMappings(ctx context.Context, conn *domain.Connection, mappings []domain.FieldMapping) ([]domain.FieldMapping, error)
	UpsertBatch(ctx context.Context, offers []*domain.JobOffer) (int, []domain.FailedOffer, error)
	ArchiveMissing(ctx context.Context, connectionID int64, activeIDs []string) (int64, error)
	UpdateStatusByGoals(ctx context.Context, connectionID *int64) (domain.StatusSweepStats, error)
	SaveResponseCache(ctx context.Context, cache *domain.ResponseCache) error
	GetResponseCache(ctx context.Context, connectionID int64) (*domain.ResponseCache, error)
	UpdateConnectionSync(ctx context.Context, connectionID int64, status string, result *domain.ImportResult) error
}

// Fetcher reads records from a provider.
type Fetcher interface {
	FetchAll(ctx context.Context, conn *domain.Connection) (*source.Result, error)
	FetchPage(ctx context.Context, conn *domain.Connection, index int) (*source.Page, error)
}

// Importer imports offers for connections.
type Importer struct {
	store   Store
	fetcher Fetcher
	locker  lock.Locker
	logger  *slog.Logger
}

// New creates an Importer.
func New(store Store, fetcher Fetcher, locker lock.Locker, logger *slog.Logger) *Importer {
	return &Importer{
		store:   store,
		fetcher: fetcher,
		locker:  locker,
		logger:  logger,
	}
}

// Process imports every record the connection's API returns. Fetch and
// database failures abort the run; records that cannot be mapped or stored
// are reported in the result and the run continues.
func (i *Importer) Process(ctx context.Context, conn *domain.Connection, batchSize int) (*domain.ImportResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := logger.FromContext(ctx, i.logger).With(slog.Int64("connection_id", conn.ID))

	unlock, err := i.locker.Lock(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	defer i.release(unlock, log)

	i.recordSync(ctx, conn.ID, domain.ConnectionStatusImporting, nil, log)
	result, err := i.process(ctx, conn, batchSize, log)
	if err != nil {
		i.recordSync(ctx, conn.ID, domain.ConnectionStatusError, nil, log)
		return nil, err
	}
	i.recordSync(ctx, conn.ID, domain.ConnectionStatusActive, result, log)
	return result, nil
}

func (i *Importer) process(ctx context.Context, conn *domain.Connection, batchSize int, log *slog.Logger) (*domain.ImportResult, error) {
	mappings, err := i.store.ListMappings(ctx, conn.ID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to load mappings: %w", err))
	}
	tr, err := mapping.New(mappings)
	if err != nil {
		return nil, fmt.Errorf("stored mappings are invalid: %w", err)
	}
	if tr.UsesDefault() {
		log.Info("No mappings found, using default mapping")
	}

	fetched, err := i.fetcher.FetchAll(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offers: %w", err)
	}
	log.Info("Fetched offers",
		slog.Int("records", len(fetched.Records)),
		slog.Int("pages", fetched.Pages),
	)

	i.cacheResponse(ctx, conn, fetched, log)

	if len(fetched.Records) == 0 {
		return &domain.ImportResult{FailedOffers: []domain.FailedOffer{}}, nil
	}

	result, activeIDs, err := i.transformAndSave(ctx, conn, tr, fetched.Records, batchSize, log)
	if err != nil {
		return nil, err
	}

	if archived, err := i.store.ArchiveMissing(ctx, conn.ID, activeIDs); err != nil {
		log.Warn("Failed to archive old offers", slog.String("error", err.Error()))
	} else if archived > 0 {
		log.Info("Archived offers missing from feed", slog.Int64("archived", archived))
	}

	if result.Imported > 0 {
		if _, err := i.store.UpdateStatusByGoals(ctx, &conn.ID); err != nil {
			log.Warn("Failed to update offer statuses", slog.String("error", err.Error()))
		}
	}

	if len(mappings) == 0 && result.Imported > 0 {
		i.persistSuggestions(ctx, conn, fetched.Records[0], log)
	}

	log.Info("Import completed",
		slog.Int("imported", result.Imported),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}

// ReprocessFromCache re-maps the cached sample of a connection without
// calling its API. mappings nil means the stored mappings.
func (i *Importer) ReprocessFromCache(ctx context.Context, conn *domain.Connection, mappings []domain.FieldMapping, batchSize int) (*domain.ImportResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := logger.FromContext(ctx, i.logger).With(slog.Int64("connection_id", conn.ID))

	unlock, err := i.locker.Lock(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	defer i.release(unlock, log)

	if mappings == nil {
		if mappings, err = i.store.ListMappings(ctx, conn.ID); err != nil {
			return nil, fmt.Errorf("failed to load mappings: %w", err)
		}
	}
	tr, err := mapping.New(mappings)
	if err != nil {
		return nil, err
	}

	cache, err := i.store.GetResponseCache(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	log.Info("Reprocessing from cache",
		slog.Int("cached", len(cache.RawData)),
		slog.Int("total_offers", cache.TotalOffers),
	)

	records := make([]gjson.Result, 0, len(cache.RawData))
	for _, raw := range cache.RawData {
		records = append(records, gjson.ParseBytes(raw))
	}

	result, _, err := i.transformAndSave(ctx, conn, tr, records, batchSize, log)
	if err != nil {
		return nil, err
	}
	result.FromCache = true
	return result, nil
}

// DetectFields fetches the first page and describes its first record. An
// empty page yields an empty list.
func (i *Importer) DetectFields(ctx context.Context, conn *domain.Connection) ([]detector.Field, error) {
	page, err := i.fetcher.FetchPage(ctx, conn, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sample: %w", err)
	}
	if len(page.Records) == 0 || !page.Records[0].IsObject() {
		return []detector.Field{}, nil
	}
	return detector.DetectRecord(page.Records[0]), nil
}

// SuggestMappings proposes mappings from a freshly fetched sample.
func (i *Importer) SuggestMappings(ctx context.Context, conn *domain.Connection) ([]domain.FieldMapping, error) {
	fields, err := i.DetectFields(ctx, conn)
	if err != nil {
		return nil, err
	}
	return detector.Suggest(conn.ID, fields), nil
}

func (i *Importer) transformAndSave(
	ctx context.Context,
	conn *domain.Connection,
	tr *mapping.Transformer,
	records []gjson.Result,
	batchSize int,
	log *slog.Logger,
) (*domain.ImportResult, []string, error) {
	result := &domain.ImportResult{FailedOffers: []domain.FailedOffer{}}
	offers := make([]*domain.JobOffer, 0, len(records))
	activeIDs := make([]string, 0, len(records))

	for _, rec := range records {
		offer, err := tr.Apply(rec, conn)
		if err != nil {
			result.FailedOffers = append(result.FailedOffers, domain.FailedOffer{
				ExternalID: rec.Get("id").String(),
				Reason:     err.Error(),
			})
			continue
		}
		offers = append(offers, offer)
		activeIDs = append(activeIDs, offer.ExternalID)
	}

	for start := 0; start < len(offers); start += batchSize {
		end := start + batchSize
		if end > len(offers) {
			end = len(offers)
		}

		saved, failed, err := i.store.UpsertBatch(ctx, offers[start:end])
		if err != nil {
			return nil, nil, domain.NewRetryableError(err)
		}
		result.Imported += saved
		result.FailedOffers = append(result.FailedOffers, failed...)

		log.Debug("Batch saved",
			slog.Int("batch_start", start),
			slog.Int("saved", saved),
			slog.Int("failed", len(failed)),
		)
	}

	result.Errors = len(result.FailedOffers)
	return result, activeIDs, nil
}

func (i *Importer) cacheResponse(ctx context.Context, conn *domain.Connection, fetched *source.Result, log *slog.Logger) {
	cache := &domain.ResponseCache{
		ConnectionID: conn.ID,
		Timestamp:    time.Now().UTC(),
		TotalOffers:  fetched.Total,
		SampleOffer:  json.RawMessage(`{}`),
		RawData:      []json.RawMessage{},
		Structure:    map[string]string{},
	}

	for n, rec := range fetched.Records {
		if n >= domain.CacheSampleSize {
			break
		}
		cache.RawData = append(cache.RawData, json.RawMessage(rec.Raw))
	}
	if len(fetched.Records) > 0 && fetched.Records[0].IsObject() {
		cache.SampleOffer = json.RawMessage(fetched.Records[0].Raw)
		for _, f := range detector.DetectRecord(fetched.Records[0]) {
			cache.Structure[f.Name] = string(f.Type)
		}
	}

	if err := i.store.SaveResponseCache(ctx, cache); err != nil {
		log.Warn("Could not cache API response", slog.String("error", err.Error()))
	}
}

func (i *Importer) persistSuggestions(ctx context.Context, conn *domain.Connection, sample gjson.Result, log *slog.Logger) {
	if !sample.IsObject() {
		return
	}
	suggested := detector.Suggest(conn.ID, detector.DetectRecord(sample))
	if len(suggested) == 0 {
		return
	}

	saved, err := i.store.ReplaceMappings(ctx, conn, suggested)
	if err != nil {
		if errors.Is(err, domain.ErrMissingClientID) {
			log.Warn("Skipping automatic mappings, connection has no owner")
			return
		}
		log.Warn("Failed to save automatic mappings", slog.String("error", err.Error()))
		return
	}
	log.Info("Automatic mappings generated", slog.Int("count", len(saved)))
}

// recordSync stores the connection status. It outlives ctx so a cancelled
// import is still recorded; failures are only logged.
func (i *Importer) recordSync(ctx context.Context, connectionID int64, status string, result *domain.ImportResult, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
	defer cancel()
	if err := i.store.UpdateConnectionSync(ctx, connectionID, status, result); err != nil {
		log.Warn("Failed to record connection sync",
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
}

func (i *Importer) release(unlock lock.Unlock, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := unlock(ctx); err != nil {
		log.Warn("Failed to release connection lock", slog.String("error", err.Error()))
	}
}

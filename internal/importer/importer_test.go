package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/internal/lock"
	"github.com/cuongbtq/offer-importer/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeStore struct {
	mappings   []domain.FieldMapping
	replaced   []domain.FieldMapping
	replaceErr error

	upserted  [][]*domain.JobOffer
	upsertErr error
	rowFails  map[string]string

	archivedIDs []string
	archiveErr  error
	archiveCall bool

	sweepScope *int64
	sweepCalls int

	cache    *domain.ResponseCache
	cacheErr error

	syncs   []syncCall
	syncErr error
}

type syncCall struct {
	status string
	result *domain.ImportResult
}

func (f *fakeStore) ListMappings(_ context.Context, _ int64) ([]domain.FieldMapping, error) {
	return f.mappings, nil
}

func (f *fakeStore) ReplaceMappings(_ context.Context, _ *domain.Connection, m []domain.FieldMapping) ([]domain.FieldMapping, error) {
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	f.replaced = m
	return m, nil
}

func (f *fakeStore) UpsertBatch(_ context.Context, offers []*domain.JobOffer) (int, []domain.FailedOffer, error) {
	if f.upsertErr != nil {
		return 0, nil, f.upsertErr
	}
	f.upserted = append(f.upserted, offers)
	var failed []domain.FailedOffer
	for _, o := range offers {
		if reason, ok := f.rowFails[o.ExternalID]; ok {
			failed = append(failed, domain.FailedOffer{ExternalID: o.ExternalID, Reason: reason})
		}
	}
	return len(offers) - len(failed), failed, nil
}

func (f *fakeStore) ArchiveMissing(_ context.Context, _ int64, ids []string) (int64, error) {
	f.archiveCall = true
	f.archivedIDs = ids
	return 0, f.archiveErr
}

func (f *fakeStore) UpdateStatusByGoals(_ context.Context, connectionID *int64) (domain.StatusSweepStats, error) {
	f.sweepCalls++
	f.sweepScope = connectionID
	return domain.StatusSweepStats{}, nil
}

func (f *fakeStore) SaveResponseCache(_ context.Context, c *domain.ResponseCache) error {
	if f.cacheErr != nil {
		return f.cacheErr
	}
	f.cache = c
	return nil
}

func (f *fakeStore) GetResponseCache(_ context.Context, _ int64) (*domain.ResponseCache, error) {
	if f.cache == nil {
		return nil, domain.ErrCacheMiss
	}
	return f.cache, nil
}

func (f *fakeStore) UpdateConnectionSync(_ context.Context, _ int64, status string, result *domain.ImportResult) error {
	f.syncs = append(f.syncs, syncCall{status: status, result: result})
	return f.syncErr
}

func (f *fakeStore) syncStatuses() []string {
	out := []string{}
	for _, c := range f.syncs {
		out = append(out, c.status)
	}
	return out
}

type fakeFetcher struct {
	body  string
	total int
	err   error
}

func (f *fakeFetcher) records() []gjson.Result {
	records, _ := source.ExtractRecords([]byte(f.body))
	return records
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ *domain.Connection) (*source.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	records := f.records()
	total := f.total
	if total < len(records) {
		total = len(records)
	}
	return &source.Result{Records: records, Pages: 1, Total: total}, nil
}

func (f *fakeFetcher) FetchPage(_ context.Context, _ *domain.Connection, index int) (*source.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &source.Page{Index: index, Body: []byte(f.body), Records: f.records()}, nil
}

func newTestImporter(store Store, fetcher Fetcher) *Importer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, fetcher, lock.NewLocalLocker(), logger)
}

func int64Ptr(v int64) *int64 { return &v }

var testConn = &domain.Connection{ID: 4, UserID: int64Ptr(11), URL: "https://example.test/jobs"}

const threeOffers = `{"offers": [
	{"id": "a1", "title": "Cook", "location": {"cityName": "Madrid", "regionName": "MD"}},
	{"title": "No id"},
	{"id": "a3", "title": "Driver", "location": {"cityName": "Sevilla"}}
]}`

func TestProcess_ZeroOffers(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: `{"total": 0, "offers": []}`})

	res, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 0, res.Errors)
	require.NotNil(t, res.FailedOffers)
	assert.Empty(t, res.FailedOffers)

	assert.Empty(t, store.upserted)
	assert.False(t, store.archiveCall)
	assert.Zero(t, store.sweepCalls)
	require.NotNil(t, store.cache)
	assert.Equal(t, 0, store.cache.TotalOffers)
}

func TestProcess_MapsAndReportsFailures(t *testing.T) {
	store := &fakeStore{
		mappings: []domain.FieldMapping{
			{ConnectionID: 4, SourceField: "id", TargetField: "ExternalId", TransformationType: domain.TransformString},
			{ConnectionID: 4, SourceField: "title", TargetField: "Title", TransformationType: domain.TransformString},
			{ConnectionID: 4, SourceField: "location.cityName", TargetField: "City", TransformationType: domain.TransformString},
		},
		rowFails: map[string]string{"a3": "value too long"},
	}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	res, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Errors)
	require.Len(t, res.FailedOffers, 2)
	assert.Contains(t, res.FailedOffers[0].Reason, "external")
	assert.Equal(t, "a3", res.FailedOffers[1].ExternalID)

	require.Len(t, store.upserted, 1)
	first := store.upserted[0][0]
	assert.Equal(t, "Madrid", first.City)
	assert.Equal(t, int64(4), first.ConnectionID)
	assert.Equal(t, int64(11), *first.UserID)
	assert.Equal(t, domain.StatusActive, first.StatusID)

	assert.Equal(t, []string{"a1", "a3"}, store.archivedIDs)
	assert.Equal(t, 1, store.sweepCalls)
	require.NotNil(t, store.sweepScope)
	assert.Equal(t, int64(4), *store.sweepScope)

	assert.Nil(t, store.replaced, "existing mappings are not overwritten")
}

func TestProcess_Batches(t *testing.T) {
	store := &fakeStore{}
	body := `[{"id":"1"},{"id":"2"},{"id":"3"},{"id":"4"},{"id":"5"}]`
	imp := newTestImporter(store, &fakeFetcher{body: body})

	res, err := imp.Process(context.Background(), testConn, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Imported)
	require.Len(t, store.upserted, 3)
	assert.Len(t, store.upserted[0], 2)
	assert.Len(t, store.upserted[2], 1)
}

func TestProcess_CacheKeepsProviderTotal(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers, total: 250})

	_, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)

	require.NotNil(t, store.cache)
	assert.Equal(t, 250, store.cache.TotalOffers)
	assert.Len(t, store.cache.RawData, 3)
}

func TestProcess_CachesSampleAndSuggestsMappings(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	_, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)

	require.NotNil(t, store.cache)
	assert.Equal(t, int64(4), store.cache.ConnectionID)
	assert.Equal(t, 3, store.cache.TotalOffers)
	assert.Len(t, store.cache.RawData, 3)
	assert.Equal(t, "a1", gjson.GetBytes(store.cache.SampleOffer, "id").String())
	assert.Equal(t, "STRING", store.cache.Structure["location.cityName"])

	require.NotEmpty(t, store.replaced)
	targets := map[string]string{}
	for _, m := range store.replaced {
		targets[m.SourceField] = m.TargetField
	}
	assert.Equal(t, "ExternalId", targets["id"])
	assert.Equal(t, "Title", targets["title"])
}

func TestProcess_NonFatalSideEffects(t *testing.T) {
	store := &fakeStore{
		archiveErr: errors.New("archive failed"),
		cacheErr:   errors.New("cache failed"),
		replaceErr: domain.ErrMissingClientID,
	}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	res, err := imp.Process(context.Background(), &domain.Connection{ID: 9, URL: "https://x"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
}

func TestProcess_FetchErrorAborts(t *testing.T) {
	store := &fakeStore{}
	fetchErr := domain.NewRetryableError(errors.New("502 bad gateway"))
	imp := newTestImporter(store, &fakeFetcher{err: fetchErr})

	_, err := imp.Process(context.Background(), testConn, 10)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Empty(t, store.upserted)
	assert.Nil(t, store.cache)
	assert.Equal(t, []string{"importing", "error"}, store.syncStatuses())
}

func TestProcess_UpsertErrorIsRetryable(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("connection reset")}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	_, err := imp.Process(context.Background(), testConn, 10)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.False(t, store.archiveCall)
}

func TestProcess_LockedConnection(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	unlock, err := imp.locker.Lock(context.Background(), testConn.ID)
	require.NoError(t, err)

	_, err = imp.Process(context.Background(), testConn, 10)
	assert.ErrorIs(t, err, domain.ErrConnectionLocked)
	assert.Empty(t, store.syncs)

	require.NoError(t, unlock(context.Background()))
	_, err = imp.Process(context.Background(), testConn, 10)
	assert.NoError(t, err)
}

func TestProcess_RecordsConnectionSync(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	res, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)

	require.Len(t, store.syncs, 2)
	assert.Equal(t, domain.ConnectionStatusImporting, store.syncs[0].status)
	assert.Nil(t, store.syncs[0].result)
	assert.Equal(t, domain.ConnectionStatusActive, store.syncs[1].status)
	assert.Same(t, res, store.syncs[1].result)
}

func TestProcess_SyncFailureDoesNotFailImport(t *testing.T) {
	store := &fakeStore{syncErr: errors.New("deadlock detected")}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	res, err := imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, []string{"importing", "active"}, store.syncStatuses())
}

func TestProcess_CancelledContextStillRecordsError(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	imp := newTestImporter(store, &fakeFetcher{err: context.Canceled})
	cancel()

	_, err := imp.Process(ctx, testConn, 10)
	require.Error(t, err)
	assert.Equal(t, []string{"importing", "error"}, store.syncStatuses())
}

func TestProcess_InvalidStoredMappings(t *testing.T) {
	store := &fakeStore{mappings: []domain.FieldMapping{{SourceField: "id", TargetField: "Nope"}}}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	_, err := imp.Process(context.Background(), testConn, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)
}

func TestReprocessFromCache(t *testing.T) {
	store := &fakeStore{}
	imp := newTestImporter(store, &fakeFetcher{body: threeOffers})

	_, err := imp.ReprocessFromCache(context.Background(), testConn, nil, 10)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	_, err = imp.Process(context.Background(), testConn, 10)
	require.NoError(t, err)
	store.upserted = nil
	store.archiveCall = false

	mappings := []domain.FieldMapping{
		{SourceField: "id", TargetField: "ExternalId"},
		{SourceField: "location.regionName", TargetField: "Region"},
	}
	res, err := imp.ReprocessFromCache(context.Background(), testConn, mappings, 10)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "MD", store.upserted[0][0].Region)
	assert.False(t, store.archiveCall, "a cached sample never archives")
}

func TestDetectFields(t *testing.T) {
	imp := newTestImporter(&fakeStore{}, &fakeFetcher{body: threeOffers})

	fields, err := imp.DetectFields(context.Background(), testConn)
	require.NoError(t, err)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "title", "location.cityName", "location.regionName"}, names)

	empty := newTestImporter(&fakeStore{}, &fakeFetcher{body: `{"data": []}`})
	fields, err = empty.DetectFields(context.Background(), testConn)
	require.NoError(t, err)
	assert.NotNil(t, fields)
	assert.Empty(t, fields)

	failing := newTestImporter(&fakeStore{}, &fakeFetcher{err: errors.New("boom")})
	_, err = failing.DetectFields(context.Background(), testConn)
	assert.Error(t, err)
}

func TestSuggestMappings(t *testing.T) {
	imp := newTestImporter(&fakeStore{}, &fakeFetcher{body: threeOffers})

	suggested, err := imp.SuggestMappings(context.Background(), testConn)
	require.NoError(t, err)
	require.NotEmpty(t, suggested)
	for _, m := range suggested {
		assert.Equal(t, int64(4), m.ConnectionID)
	}
}

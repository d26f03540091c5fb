package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCache_SaveAndGet(t *testing.T) {
	s, mock := newTestStorage(t)

	cache := &domain.ResponseCache{
		ConnectionID: 6,
		Timestamp:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		TotalOffers:  25,
		SampleOffer:  json.RawMessage(`{"id":"1"}`),
		RawData:      []json.RawMessage{json.RawMessage(`{"id":"1"}`), json.RawMessage(`{"id":"2"}`)},
		Structure:    map[string]string{"id": "STRING"},
	}
	encoded, err := json.Marshal(cache)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("ConnectionId") DO UPDATE`)).
		WithArgs(int64(6), string(encoded)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "ApiResponseCache"`)).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"CacheData"}).AddRow(string(encoded)))

	require.NoError(t, s.SaveResponseCache(context.Background(), cache))

	got, err := s.GetResponseCache(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, 25, got.TotalOffers)
	require.Len(t, got.RawData, 2)
	assert.JSONEq(t, `{"id":"2"}`, string(got.RawData[1]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResponseCache_Miss(t *testing.T) {
	s, mock := newTestStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "ApiResponseCache"`)).WillReturnError(sql.ErrNoRows)

	_, err := s.GetResponseCache(context.Background(), 6)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestGetResponseCache_Corrupt(t *testing.T) {
	s, mock := newTestStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "ApiResponseCache"`)).
		WillReturnRows(sqlmock.NewRows([]string{"CacheData"}).AddRow("{not json"))

	_, err := s.GetResponseCache(context.Background(), 6)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)
}

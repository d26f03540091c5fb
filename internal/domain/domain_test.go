package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestConnection_ResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		conn    Connection
		want    string
		wantErr error
	}{
		{name: "url wins", conn: Connection{URL: "https://a", Endpoint: "https://b"}, want: "https://a"},
		{name: "endpoint fallback", conn: Connection{Endpoint: " https://b "}, want: "https://b"},
		{name: "neither", conn: Connection{}, wantErr: ErrMissingURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conn.ResolveURL()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnection_HTTPMethod(t *testing.T) {
	assert.Equal(t, "GET", (&Connection{}).HTTPMethod())
	assert.Equal(t, "POST", (&Connection{Method: "post"}).HTTPMethod())
}

func TestConnection_OwnerClientID(t *testing.T) {
	id, ok := (&Connection{ClientID: int64Ptr(3), UserID: int64Ptr(9)}).OwnerClientID()
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	id, ok = (&Connection{UserID: int64Ptr(9)}).OwnerClientID()
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	_, ok = (&Connection{}).OwnerClientID()
	assert.False(t, ok)
}

func TestCanonicalTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"City", "City", true},
		{"city", "City", true},
		{"external_id", "ExternalId", true},
		{"salary_min", "SalaryMin", true},
		{"applications_goal", "ApplicationsGoal", true},
		{"company", "CompanyName", true},
		{"apply_url", "ApplicationUrl", true},
		{"StatusId", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalTarget(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldMapping_Validate(t *testing.T) {
	m := FieldMapping{SourceField: "location.cityName", TargetField: "city"}
	require.NoError(t, m.Validate())
	assert.Equal(t, "City", m.TargetField)
	assert.Equal(t, TransformString, m.TransformationType)

	m = FieldMapping{SourceField: "x", TargetField: "Budget", TransformationType: "number"}
	require.NoError(t, m.Validate())
	assert.Equal(t, TransformNumber, m.TransformationType)

	bad := []FieldMapping{
		{SourceField: "", TargetField: "City"},
		{SourceField: "x", TargetField: "Nope"},
		{SourceField: "x", TargetField: "City", TransformationType: "JSON"},
		{SourceField: "x", TargetField: "Source"},
		{SourceField: "x", TargetField: "StatusId"},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrInvalidMapping)
	}
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("db down")
	assert.True(t, IsRetryable(fmt.Errorf("claim: %w", NewRetryableError(base))))
	assert.False(t, IsRetryable(base))
	assert.ErrorIs(t, NewRetryableError(base), base)
}

func TestConnection_DueForSync(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		conn Connection
		want bool
	}{
		{name: "manual", conn: Connection{Frequency: FrequencyManual, Status: ConnectionStatusActive}, want: false},
		{name: "unknown frequency", conn: Connection{Frequency: "monthly", Status: ConnectionStatusActive}, want: false},
		{name: "never synced", conn: Connection{Frequency: FrequencyDaily, Status: ConnectionStatusPending}, want: true},
		{name: "hourly elapsed", conn: Connection{Frequency: FrequencyHourly, Status: ConnectionStatusActive, LastSync: ago(61 * time.Minute)}, want: true},
		{name: "hourly not elapsed", conn: Connection{Frequency: FrequencyHourly, Status: ConnectionStatusActive, LastSync: ago(59 * time.Minute)}, want: false},
		{name: "daily boundary", conn: Connection{Frequency: "Daily", Status: ConnectionStatusActive, LastSync: ago(24 * time.Hour)}, want: true},
		{name: "weekly not elapsed", conn: Connection{Frequency: FrequencyWeekly, Status: ConnectionStatusActive, LastSync: ago(6 * 24 * time.Hour)}, want: false},
		{name: "error status", conn: Connection{Frequency: FrequencyHourly, Status: ConnectionStatusError}, want: false},
		{name: "no status", conn: Connection{Frequency: FrequencyHourly}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conn.DueForSync(now))
		})
	}
}

func TestSyncInterval(t *testing.T) {
	d, ok := SyncInterval("weekly")
	assert.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, d)

	for _, f := range []string{"manual", "", "monthly"} {
		_, ok := SyncInterval(f)
		assert.False(t, ok, f)
	}
}

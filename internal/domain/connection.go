package domain

import (
	"net/http"
	"strings"
	"time"
)

// Sync frequencies of a connection. Manual connections are never scheduled.
const (
	FrequencyManual = "manual"
	FrequencyHourly = "hourly"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Connection status constants
const (
	ConnectionStatusPending   = "pending"
	ConnectionStatusImporting = "importing"
	ConnectionStatusActive    = "active"
	ConnectionStatusError     = "error"
)

// Connection is a configured external job-data source.
type Connection struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	UserID         *int64     `db:"UserId" json:"user_id,omitempty"`
	ClientID       *int64     `db:"clientId" json:"client_id,omitempty"`
	URL            string     `db:"url" json:"url"`
	Method         string     `db:"Method" json:"method"`
	Headers        string     `db:"Headers" json:"headers"`
	Body           string     `db:"Body" json:"body"`
	SourceType     string     `db:"SourceType" json:"source_type"`
	Endpoint       string     `db:"Endpoint" json:"endpoint"`
	Frequency      string     `db:"frequency" json:"frequency"`
	Status         string     `db:"status" json:"status"`
	LastSync       *time.Time `db:"lastSync" json:"last_sync,omitempty"`
	ImportedOffers int        `db:"importedOffers" json:"imported_offers"`
	ErrorCount     int        `db:"errorCount" json:"error_count"`
}

// SyncInterval returns how often a frequency is imported. ok is false for
// manual and unknown frequencies.
func SyncInterval(frequency string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(frequency)) {
	case FrequencyHourly:
		return time.Hour, true
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// DueForSync reports whether a scheduled import should run at now. Connections
// without a status or in error wait for a manual import.
func (c *Connection) DueForSync(now time.Time) bool {
	interval, ok := SyncInterval(c.Frequency)
	if !ok {
		return false
	}
	if c.Status == "" || c.Status == ConnectionStatusError {
		return false
	}
	return c.LastSync == nil || now.Sub(*c.LastSync) >= interval
}

// ResolveURL returns url, falling back to Endpoint.
func (c *Connection) ResolveURL() (string, error) {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u, nil
	}
	if u := strings.TrimSpace(c.Endpoint); u != "" {
		return u, nil
	}
	return "", ErrMissingURL
}

// HTTPMethod returns the upper-cased configured method, GET when unset.
func (c *Connection) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(c.Method))
	if m == "" {
		return http.MethodGet
	}
	return m
}

// OwnerClientID is the ClientId stamped on mappings that do not carry one:
// the connection's clientId, or its UserId when clientId is null.
func (c *Connection) OwnerClientID() (int64, bool) {
	if c.ClientID != nil {
		return *c.ClientID, true
	}
	if c.UserID != nil {
		return *c.UserID, true
	}
	return 0, false
}

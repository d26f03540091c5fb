// Package source fetches offer pages from a connection's provider API.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const maxResponseBytes = 50 << 20

// envelopeKeys are the response keys that may hold the offer array.
var envelopeKeys = []string{"data", "results", "jobs", "offers", "items"}

// Config controls outbound requests.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	PageSize  int
	PageDelay time.Duration
	MaxPages  int
}

// Client fetches pages over HTTP.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

// Page is one decoded provider response.
type Page struct {
	Index      int
	Body       []byte
	Records    []gjson.Result
	TotalPages int
}

// Result is every record fetched for one connection.
type Result struct {
	Records []gjson.Result
	Pages   int
	// Total is the provider's reported total, or len(Records) when absent.
	Total int
}

// NewClient creates a source client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 8
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 500
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "offer-importer/1.0"
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// FetchAll walks the provider's pages. Pagination applies only when the
// connection body carries a "page" object; otherwise one request is made.
// Any request or decode failure aborts the walk.
func (c *Client) FetchAll(ctx context.Context, conn *domain.Connection) (*Result, error) {
	first, err := c.FetchPage(ctx, conn, 1)
	if err != nil {
		return nil, err
	}

	res := &Result{Records: first.Records, Pages: 1}
	res.Total = reportedTotal(first.Body, len(first.Records))

	if !c.paginated(conn) || len(first.Records) == 0 {
		return res, nil
	}

	last := first.TotalPages
	if last > c.cfg.MaxPages {
		c.logger.Warn("Provider reports more pages than allowed, truncating",
			slog.Int64("connection_id", conn.ID),
			slog.Int("pages", last),
			slog.Int("max_pages", c.cfg.MaxPages))
		last = c.cfg.MaxPages
	}

	for index := 2; index <= last; index++ {
		if err := sleepCtx(ctx, c.cfg.PageDelay); err != nil {
			return nil, err
		}

		page, err := c.FetchPage(ctx, conn, index)
		if err != nil {
			return nil, err
		}
		res.Pages++
		if len(page.Records) == 0 {
			break
		}
		res.Records = append(res.Records, page.Records...)

		c.logger.Debug("Fetched page",
			slog.Int64("connection_id", conn.ID),
			slog.Int("page", index),
			slog.Int("total_pages", last),
			slog.Int("records", len(page.Records)))
	}

	if res.Total < len(res.Records) {
		res.Total = len(res.Records)
	}
	return res, nil
}

// FetchPage requests one page. index is 1-based.
func (c *Client) FetchPage(ctx context.Context, conn *domain.Connection, index int) (*Page, error) {
	target, err := conn.ResolveURL()
	if err != nil {
		return nil, err
	}

	body := c.requestBody(conn, index)
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, conn.HTTPMethod(), target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req, conn)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to fetch page %d: %w", index, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to read page %d: %w", index, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Page: index, Body: snippet(raw)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, domain.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("page %d: response is not valid JSON", index)
	}

	records, found := ExtractRecords(raw)
	if !found {
		c.logger.Warn("No offer array found in response",
			slog.Int64("connection_id", conn.ID),
			slog.Int("page", index))
	}

	return &Page{
		Index:      index,
		Body:       raw,
		Records:    records,
		TotalPages: c.totalPages(raw),
	}, nil
}

// ExtractRecords returns the offer array of a response envelope. found is
// false when the response has no recognisable array.
func ExtractRecords(body []byte) (records []gjson.Result, found bool) {
	root := gjson.ParseBytes(body)
	for _, key := range envelopeKeys {
		if v := root.Get(key); v.IsArray() {
			return v.Array(), true
		}
	}
	if root.IsArray() {
		return root.Array(), true
	}
	return nil, false
}

func (c *Client) paginated(conn *domain.Connection) bool {
	return gjson.Get(conn.Body, "page").IsObject()
}

// requestBody rewrites page.index and page.size in the connection body.
func (c *Client) requestBody(conn *domain.Connection, index int) []byte {
	raw := strings.TrimSpace(conn.Body)
	if raw == "" {
		return nil
	}
	if !gjson.Valid(raw) {
		c.logger.Warn("Connection body is not valid JSON, sending none",
			slog.Int64("connection_id", conn.ID))
		return nil
	}
	body := []byte(raw)
	if !c.paginated(conn) {
		return body
	}

	body, err := sjson.SetBytes(body, "page.index", index)
	if err == nil {
		body, err = sjson.SetBytes(body, "page.size", c.cfg.PageSize)
	}
	if err != nil {
		c.logger.Warn("Failed to set page in connection body",
			slog.Int64("connection_id", conn.ID),
			slog.String("error", err.Error()))
		return []byte(raw)
	}
	return body
}

func (c *Client) applyHeaders(req *http.Request, conn *domain.Connection) {
	raw := strings.TrimSpace(conn.Headers)
	if raw == "" {
		return
	}
	headers := gjson.Parse(raw)
	if !gjson.Valid(raw) || !headers.IsObject() {
		c.logger.Warn("Connection headers are not a JSON object, ignoring",
			slog.Int64("connection_id", conn.ID))
		return
	}
	headers.ForEach(func(key, value gjson.Result) bool {
		req.Header.Set(key.String(), value.String())
		return true
	})
}

// totalPages reads "pages", falling back to ceil(total / page size).
func (c *Client) totalPages(body []byte) int {
	if pages := gjson.GetBytes(body, "pages"); pages.Type == gjson.Number && pages.Int() > 0 {
		return int(pages.Int())
	}
	if total := gjson.GetBytes(body, "total"); total.Type == gjson.Number && total.Int() > 0 {
		return int(math.Ceil(float64(total.Int()) / float64(c.cfg.PageSize)))
	}
	return 1
}

func reportedTotal(body []byte, fallback int) int {
	if total := gjson.GetBytes(body, "total"); total.Type == gjson.Number && total.Int() > 0 {
		return int(total.Int())
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Page       int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d for page %d: %s", e.StatusCode, e.Page, e.Body)
}

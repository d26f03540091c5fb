package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/offer-importer/internal/detector"
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/internal/lock"
	"github.com/cuongbtq/offer-importer/internal/source"
	"github.com/cuongbtq/offer-importer/internal/storage"
	"github.com/cuongbtq/offer-importer/shared/logger"
	"github.com/cuongbtq/offer-importer/shared/postgresql"
	"github.com/gin-gonic/gin"
)

// Store is the persistence used by the handlers.
type Store interface {
	GetConnection(ctx context.Context, id int64) (*domain.Connection, error)
	ListConnections(ctx context.Context) ([]domain.Connection, error)
	CreateConnection(ctx context.Context, conn *domain.Connection) error
	UpdateConnection(ctx context.Context, conn *domain.Connection) error
	DeleteConnection(ctx context.Context, id int64) error

	ListMappings(ctx context.Context, connectionID int64) ([]domain.FieldMapping, error)
	ReplaceMappings(ctx context.Context, conn *domain.Connection, mappings []domain.FieldMapping) ([]domain.FieldMapping, error)

	CreateImportRun(ctx context.Context, run *domain.ImportRun) error
	GetImportRun(ctx context.Context, runID string) (*domain.ImportRun, error)
	FailImportRun(ctx context.Context, runID, errorMsg string) error

	ListOffers(ctx context.Context, filter storage.OfferFilter) ([]domain.JobOffer, error)
	UpdateStatusByGoals(ctx context.Context, connectionID *int64) (domain.StatusSweepStats, error)
}

// Importer runs the synchronous importer operations.
type Importer interface {
	DetectFields(ctx context.Context, conn *domain.Connection) ([]detector.Field, error)
	SuggestMappings(ctx context.Context, conn *domain.Connection) ([]domain.FieldMapping, error)
	ReprocessFromCache(ctx context.Context, conn *domain.Connection, mappings []domain.FieldMapping, batchSize int) (*domain.ImportResult, error)
}

// Publisher queues import runs for the worker service.
type Publisher interface {
	PublishJSON(ctx context.Context, msg any) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       Store
	Importer    Importer
	Publisher   Publisher
	Locker      lock.Locker
	HealthCheck func(ctx context.Context) error
	BatchSize   int
	MaxRetries  int
}

// Handler serves the dashboard API.
type Handler struct {
	logger      *slog.Logger
	store       Store
	importer    Importer
	publisher   Publisher
	locker      lock.Locker
	healthCheck func(ctx context.Context) error
	batchSize   int
	maxRetries  int
}

// New creates a Handler.
func New(deps *Dependencies) *Handler {
	return &Handler{
		logger:      deps.Logger,
		store:       deps.Store,
		importer:    deps.Importer,
		publisher:   deps.Publisher,
		locker:      deps.Locker,
		healthCheck: deps.HealthCheck,
		batchSize:   deps.BatchSize,
		maxRetries:  deps.MaxRetries,
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "offer-importer-api",
	})
}

func (h *Handler) log(c *gin.Context) *slog.Logger {
	return logger.FromContext(c.Request.Context(), h.logger)
}

func (h *Handler) connectionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// loadConnection resolves the :id parameter and writes the error response
// when it cannot.
func (h *Handler) loadConnection(c *gin.Context) (*domain.Connection, bool) {
	id, ok := h.connectionID(c)
	if !ok {
		return nil, false
	}
	conn, err := h.store.GetConnection(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to load connection", err)
		return nil, false
	}
	return conn, true
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	var upstream *source.StatusError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConnectionNotFound),
		errors.Is(err, domain.ErrImportRunNotFound),
		errors.Is(err, domain.ErrCacheMiss):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMapping),
		errors.Is(err, domain.ErrMissingClientID),
		errors.Is(err, domain.ErrMissingURL):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConnectionLocked):
		status = http.StatusConflict
	case postgresql.ErrorCode(err) == postgresql.CodeUniqueViolation,
		postgresql.ErrorCode(err) == postgresql.CodeForeignKeyViolation:
		status = http.StatusConflict
	case domain.IsRetryable(err), errors.As(err, &upstream):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.log(c).Error(msg, slog.String("error", err.Error()))
	} else {
		h.log(c).Warn(msg, slog.String("error", err.Error()))
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
		"details": err.Error(),
	})
}

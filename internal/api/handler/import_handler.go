package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/offer-importer/internal/api/dto"
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateImport handles POST /api/v1/connections/:id/imports
// Creates a PENDING import run and hands it to the worker service.
func (h *Handler) CreateImport(c *gin.Context) {
	var req dto.CreateImportRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	conn, ok := h.loadConnection(c)
	if !ok {
		return
	}
	if _, err := conn.ResolveURL(); err != nil {
		h.respondError(c, "Connection cannot be imported", err)
		return
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.batchSize
	}

	run := domain.NewImportRun(uuid.New().String(), conn.ID, batchSize, h.maxRetries, time.Now().UTC())

	if err := h.store.CreateImportRun(c.Request.Context(), run); err != nil {
		h.respondError(c, "Failed to create import run", err)
		return
	}

	if err := h.publisher.PublishJSON(c.Request.Context(), domain.ImportRunMessage{RunID: run.RunID}); err != nil {
		h.log(c).Error("Failed to publish import run",
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
		if ferr := h.store.FailImportRun(c.Request.Context(), run.RunID, "failed to queue: "+err.Error()); ferr != nil {
			h.log(c).Error("Failed to mark unqueued run as failed", slog.String("error", ferr.Error()))
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Failed to queue import run",
			"run_id":  run.RunID,
		})
		return
	}

	h.log(c).Info("Import run queued",
		slog.String("run_id", run.RunID),
		slog.Int64("connection_id", conn.ID),
		slog.Int("batch_size", batchSize),
	)
	c.JSON(http.StatusAccepted, toImportRunDTO(run))
}

// GetImportRun handles GET /api/v1/imports/:run_id
func (h *Handler) GetImportRun(c *gin.Context) {
	runID := c.Param("run_id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id must be a valid UUID",
		})
		return
	}

	run, err := h.store.GetImportRun(c.Request.Context(), runID)
	if err != nil {
		h.respondError(c, "Failed to get import run", err)
		return
	}
	c.JSON(http.StatusOK, toImportRunDTO(run))
}

// Reprocess handles POST /api/v1/connections/:id/reprocess
// Re-maps the cached sample with the stored mappings or the ones in the
// request body, without calling the provider.
func (h *Handler) Reprocess(c *gin.Context) {
	var req dto.ReprocessRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	conn, ok := h.loadConnection(c)
	if !ok {
		return
	}

	var mappings []domain.FieldMapping
	if req.Mappings != nil {
		replace := dto.ReplaceMappingsRequest{Mappings: req.Mappings}
		mappings = replace.ToDomain(conn.ID)
		if err := validateRules(mappings); err != nil {
			h.respondError(c, "Invalid mapping", err)
			return
		}
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.batchSize
	}

	result, err := h.importer.ReprocessFromCache(c.Request.Context(), conn, mappings, batchSize)
	if err != nil {
		h.respondError(c, "Failed to reprocess cached offers", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"imported":     result.Imported,
		"errors":       result.Errors,
		"failedOffers": result.FailedOffers,
		"fromCache":    result.FromCache,
	})
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func toImportRunDTO(run *domain.ImportRun) dto.ImportRunDTO {
	out := dto.ImportRunDTO{
		RunID:        run.RunID,
		ConnectionID: run.ConnectionID,
		BatchSize:    run.BatchSize,
		Status:       run.Status,
		WorkerID:     run.WorkerID,
		Imported:     run.Imported,
		Errors:       run.Errors,
		FailedOffers: []domain.FailedOffer{},
		ErrorMessage: run.ErrorMessage,
		RetryCount:   run.RetryCount,
		MaxRetries:   run.MaxRetries,
		CreatedAt:    run.CreatedAt.Format(time.RFC3339),
		StartedAt:    formatTime(run.StartedAt),
		CompletedAt:  formatTime(run.CompletedAt),
		UpdatedAt:    run.UpdatedAt.Format(time.RFC3339),
	}
	if len(run.FailedOffers) > 0 {
		// Stored by the worker; a decode failure leaves the list empty.
		_ = json.Unmarshal(run.FailedOffers, &out.FailedOffers)
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

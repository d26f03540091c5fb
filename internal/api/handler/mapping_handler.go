package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/offer-importer/internal/api/dto"
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/internal/mapping"
	"github.com/gin-gonic/gin"
)

// ListMappings handles GET /api/v1/connections/:id/mappings
func (h *Handler) ListMappings(c *gin.Context) {
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	mappings, err := h.store.ListMappings(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to list mappings", err)
		return
	}
	c.JSON(http.StatusOK, dto.MappingsResponse{ConnectionID: id, Mappings: mappings})
}

// ReplaceMappings handles PUT /api/v1/connections/:id/mappings
// The whole set is swapped while holding the connection lock, so it never
// interleaves with an import of the same connection.
func (h *Handler) ReplaceMappings(c *gin.Context) {
	var req dto.ReplaceMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	mappings := req.ToDomain(conn.ID)
	if err := validateRules(mappings); err != nil {
		h.respondError(c, "Invalid mapping", err)
		return
	}

	unlock, err := h.locker.Lock(c.Request.Context(), conn.ID)
	if err != nil {
		h.respondError(c, "Connection is busy", err)
		return
	}
	defer h.release(c, unlock)

	saved, err := h.store.ReplaceMappings(c.Request.Context(), conn, mappings)
	if err != nil {
		h.respondError(c, "Failed to replace mappings", err)
		return
	}
	c.JSON(http.StatusOK, dto.MappingsResponse{ConnectionID: conn.ID, Mappings: saved})
}

// SuggestMappings handles POST /api/v1/connections/:id/mappings/suggest
// Nothing is saved.
func (h *Handler) SuggestMappings(c *gin.Context) {
	conn, ok := h.loadConnection(c)
	if !ok {
		return
	}

	suggested, err := h.importer.SuggestMappings(c.Request.Context(), conn)
	if err != nil {
		h.respondError(c, "Failed to suggest mappings", err)
		return
	}
	c.JSON(http.StatusOK, dto.MappingsResponse{ConnectionID: conn.ID, Mappings: suggested})
}

func validateRules(mappings []domain.FieldMapping) error {
	for _, m := range mappings {
		if err := mapping.ValidateRule(m.Rule()); err != nil {
			return fmt.Errorf("mapping %q: %w", m.SourceField, err)
		}
	}
	return nil
}

func (h *Handler) release(c *gin.Context, unlock func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock(ctx); err != nil {
		h.log(c).Warn("Failed to release connection lock", slog.String("error", err.Error()))
	}
}

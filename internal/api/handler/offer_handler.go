package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/offer-importer/internal/api/dto"
	"github.com/cuongbtq/offer-importer/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultOfferPageSize = 20
	maxOfferPageSize     = 100
)

// ListOffers handles GET /api/v1/offers
// Keyset pagination over (CreatedAt, Id), newest first.
func (h *Handler) ListOffers(c *gin.Context) {
	var req dto.ListOffersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log(c).Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultOfferPageSize
	}
	if req.PageSize > maxOfferPageSize {
		req.PageSize = maxOfferPageSize
	}

	cursor, err := DecodeOfferCursor(req.Cursor)
	if err != nil {
		h.log(c).Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	offers, err := h.store.ListOffers(c.Request.Context(), storage.OfferFilter{
		ConnectionID: req.ConnectionID,
		StatusID:     req.StatusID,
		PageSize:     req.PageSize,
		Cursor:       cursor,
	})
	if err != nil {
		h.respondError(c, "Failed to list offers", err)
		return
	}

	hasMore := len(offers) > req.PageSize
	if hasMore {
		offers = offers[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := offers[len(offers)-1]
		nextCursor = EncodeOfferCursor(&storage.OfferCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListOffersResponse{
		Offers:     offers,
		NextCursor: nextCursor,
	})
}

// StatusSweep handles POST /api/v1/offers/status-sweep
func (h *Handler) StatusSweep(c *gin.Context) {
	var req dto.StatusSweepRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	stats, err := h.store.UpdateStatusByGoals(c.Request.Context(), req.ConnectionID)
	if err != nil {
		h.respondError(c, "Failed to update offer statuses", err)
		return
	}

	h.log(c).Info("Status sweep completed",
		slog.Int64("goal_completed", stats.GoalCompleted),
		slog.Int64("budget_completed", stats.BudgetCompleted),
	)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": stats,
	})
}

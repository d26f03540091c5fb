package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/offer-importer/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// ListConnections handles GET /api/v1/connections
func (h *Handler) ListConnections(c *gin.Context) {
	conns, err := h.store.ListConnections(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list connections", err)
		return
	}
	c.JSON(http.StatusOK, dto.ListConnectionsResponse{Connections: conns})
}

// GetConnection handles GET /api/v1/connections/:id
func (h *Handler) GetConnection(c *gin.Context) {
	conn, ok := h.loadConnection(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, conn)
}

// CreateConnection handles POST /api/v1/connections
func (h *Handler) CreateConnection(c *gin.Context) {
	var req dto.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	conn := req.ToDomain(0)
	if _, err := conn.ResolveURL(); err != nil {
		h.respondError(c, "Connection needs a url or endpoint", err)
		return
	}

	if err := h.store.CreateConnection(c.Request.Context(), conn); err != nil {
		h.respondError(c, "Failed to create connection", err)
		return
	}

	h.log(c).Info("Connection created",
		slog.Int64("connection_id", conn.ID),
		slog.String("name", conn.Name),
	)
	c.JSON(http.StatusCreated, conn)
}

// UpdateConnection handles PUT /api/v1/connections/:id
func (h *Handler) UpdateConnection(c *gin.Context) {
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	var req dto.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	conn := req.ToDomain(id)
	if _, err := conn.ResolveURL(); err != nil {
		h.respondError(c, "Connection needs a url or endpoint", err)
		return
	}

	if err := h.store.UpdateConnection(c.Request.Context(), conn); err != nil {
		h.respondError(c, "Failed to update connection", err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// DeleteConnection handles DELETE /api/v1/connections/:id
func (h *Handler) DeleteConnection(c *gin.Context) {
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	unlock, err := h.locker.Lock(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Connection is busy", err)
		return
	}
	defer h.release(c, unlock)

	if err := h.store.DeleteConnection(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete connection", err)
		return
	}

	h.log(c).Info("Connection deleted", slog.Int64("connection_id", id))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Connection deleted",
	})
}

// DetectFields handles POST /api/v1/connections/:id/detect-fields
func (h *Handler) DetectFields(c *gin.Context) {
	conn, ok := h.loadConnection(c)
	if !ok {
		return
	}

	fields, err := h.importer.DetectFields(c.Request.Context(), conn)
	if err != nil {
		h.respondError(c, "Failed to detect fields", err)
		return
	}

	h.log(c).Info("Fields detected",
		slog.Int64("connection_id", conn.ID),
		slog.Int("fields", len(fields)),
	)
	c.JSON(http.StatusOK, dto.NewDetectFieldsResponse(fields))
}

// Package gateway exposes the guestbook over HTTP: entry submission and
// the reconciled view, submission tracking, ledger inspection, and a
// websocket event stream for the presentation layer.
package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guestchain/guestchain/internal/coordinator"
	"go.uber.org/zap"
)

// GuestbookHandler serves the submission and view endpoints.
type GuestbookHandler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

// NewGuestbookHandler creates a new GuestbookHandler.
func NewGuestbookHandler(coord *coordinator.Coordinator, logger *zap.Logger) *GuestbookHandler {
	return &GuestbookHandler{coord: coord, logger: logger}
}

// Register mounts the guestbook routes on the given router group.
func (h *GuestbookHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/entries", h.Submit)
	rg.GET("/entries", h.View)
	rg.POST("/refresh", h.Refresh)
	rg.GET("/submissions", h.ListSubmissions)
	rg.GET("/submissions/:handle", h.GetSubmission)
}

// submitRequest is the payload for POST /entries. Both fields may be
// empty; the settlement layer applies any policy limits.
type submitRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Submit handles POST /entries — dispatches an append and returns its
// correlation handle without waiting for settlement.
func (h *GuestbookHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	handle, err := h.coord.Submit(c.Request.Context(), req.Author, req.Body)
	if err != nil {
		if errors.Is(err, coordinator.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement layer not ready"})
			return
		}
		h.logger.Error("submit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch entry"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"handle": handle.String(),
		"status": coordinator.StatusSubmitted,
	})
}

// View handles GET /entries — the reconciled view plus pending locals,
// served without blocking on the ledger.
func (h *GuestbookHandler) View(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.coord.CurrentView()})
}

// Refresh handles POST /refresh — forces an authoritative re-read.
func (h *GuestbookHandler) Refresh(c *gin.Context) {
	if err := h.coord.Refresh(c.Request.Context()); err != nil {
		h.logger.Warn("refresh", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.coord.CurrentView()})
}

// ListSubmissions handles GET /submissions — full submission history.
func (h *GuestbookHandler) ListSubmissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"submissions": h.coord.Submissions()})
}

// GetSubmission handles GET /submissions/:handle.
func (h *GuestbookHandler) GetSubmission(c *gin.Context) {
	handle, err := uuid.Parse(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle must be a UUID"})
		return
	}

	sub, err := h.coord.Submission(handle)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

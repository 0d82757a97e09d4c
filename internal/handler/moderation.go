package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

const pendingPageLimit = 100

type ModerationHandler interface {
	ListPending(c *gin.Context)
	GetComment(c *gin.Context)
	UpdateContent(c *gin.Context)
	UpdateStatus(c *gin.Context)
}

type moderationHandler struct {
	service  *moderation.Service
	comments repository.CommentRepository
	logger   *zap.Logger
}

func NewModerationHandler(service *moderation.Service, comments repository.CommentRepository, logger *zap.Logger) ModerationHandler {
	return &moderationHandler{
		service:  service,
		comments: comments,
		logger:   logger,
	}
}

// ListPending handles GET /api/comments/pending
func (h *moderationHandler) ListPending(c *gin.Context) {
	comments, err := h.comments.ListByModerationStatus(c.Request.Context(), models.ModerationStatusPending, pendingPageLimit)
	if err != nil {
		h.logger.Error("Failed to list pending comments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve comments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// GetComment handles GET /api/comments/:id
func (h *moderationHandler) GetComment(c *gin.Context) {
	id := strings.ToLower(c.Param("id"))

	comment, err := h.comments.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get comment", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve comment"})
		return
	}
	if comment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

// UpdateContent handles PUT /api/comments/:id, the ingestion surface for
// comment edits. Re-submitting identical content is a no-op.
type UpdateContentRequest struct {
	Content  string          `json:"content" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

func (h *moderationHandler) UpdateContent(c *gin.Context) {
	id := strings.ToLower(c.Param("id"))

	var req UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind JSON for content update", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.service.ModerateUpdated(c.Request.Context(), id, req.Content, req.Metadata)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"comment": comment})
	case errors.Is(err, moderation.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
	default:
		h.logger.Error("Failed to apply comment edit", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
	}
}

// UpdateStatus handles POST /api/comments/:id/status
type UpdateStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Revision *int   `json:"revision"`
}

func (h *moderationHandler) UpdateStatus(c *gin.Context) {
	id := strings.ToLower(c.Param("id"))

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind JSON for status update", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.service.SetStatus(c.Request.Context(), id, req.Status, req.Revision)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"comment": comment})
	case errors.Is(err, moderation.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Valid values: pending, approved, rejected"})
	case errors.Is(err, repository.ErrStatusNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
	case errors.Is(err, repository.ErrSameStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "Comment already has that status"})
	case errors.Is(err, repository.ErrStaleRevision):
		c.JSON(http.StatusConflict, gin.H{"error": "Status was changed by someone else, refresh and retry"})
	default:
		h.logger.Error("Failed to update moderation status", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
	}
}

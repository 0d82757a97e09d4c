package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/reports"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

type ReportHandler interface {
	CreateReport(c *gin.Context)
	GetReport(c *gin.Context)
	UpdateReportStatus(c *gin.Context)
}

type reportHandler struct {
	service *reports.Service
	logger  *zap.Logger
}

func NewReportHandler(service *reports.Service, logger *zap.Logger) ReportHandler {
	return &reportHandler{
		service: service,
		logger:  logger,
	}
}

// CreateReport handles POST /api/reports
type CreateReportRequest struct {
	CommentID string `json:"comment_id" binding:"required"`
	Reportee  string `json:"reportee" binding:"required"`
	Message   string `json:"message"`
}

func (h *reportHandler) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind JSON for report", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.Create(c.Request.Context(), strings.ToLower(req.CommentID), req.Reportee, req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"report": report})
	case errors.Is(err, moderation.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
	default:
		h.logger.Error("Failed to create report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create report"})
	}
}

// GetReport handles GET /api/reports/:id
func (h *reportHandler) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	report, err := h.service.GetByID(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"report": report})
	case errors.Is(err, repository.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	default:
		h.logger.Error("Failed to get report", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve report"})
	}
}

// UpdateReportStatus handles POST /api/reports/:id/status
type UpdateReportStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *reportHandler) UpdateReportStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	var req UpdateReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind JSON for report status update", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.SetStatus(c.Request.Context(), id, req.Status)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"report": report})
	case errors.Is(err, moderation.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Valid values: pending, resolved, closed"})
	case errors.Is(err, repository.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	case errors.Is(err, repository.ErrSameStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "Report already has that status"})
	default:
		h.logger.Error("Failed to update report status", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update report status"})
	}
}

package reports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

// Service handles user-filed reports about comments and routes them into
// the same human-review loop as pending comments.
type Service struct {
	reports  repository.ReportRepository
	comments repository.CommentRepository
	notifier moderation.Notifier
	logger   *zap.Logger
}

func NewService(
	reports repository.ReportRepository,
	comments repository.CommentRepository,
	notifier moderation.Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		reports:  reports,
		comments: comments,
		notifier: notifier,
		logger:   logger,
	}
}

// Create files a new pending report against an existing comment and
// notifies the review channel.
func (s *Service) Create(ctx context.Context, commentID, reportee, message string) (*models.Report, error) {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, moderation.ErrCommentNotFound
	}

	report := &models.Report{
		ID:        uuid.New(),
		CommentID: commentID,
		Reportee:  reportee,
		Message:   message,
		Status:    models.ReportStatusPending,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	if err := s.notifier.NotifyReportCreated(ctx, report, comment); err != nil {
		s.logger.Error("Failed to send report notification",
			zap.String("report_id", report.ID.String()), zap.Error(err))
	}

	return report, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, repository.ErrReportNotFound
	}
	return report, nil
}

// SetStatus resolves or closes a report. A change to the current status is
// a conflict, surfaced as repository.ErrSameStatus.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Report, error) {
	switch status {
	case models.ReportStatusPending, models.ReportStatusResolved, models.ReportStatusClosed:
	default:
		return nil, moderation.ErrInvalidStatus
	}
	return s.reports.ChangeStatus(ctx, id, status)
}

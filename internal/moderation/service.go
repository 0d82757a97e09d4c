package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/classifier"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrInvalidStatus   = errors.New("invalid moderation status")
)

// Classifier scores comment content; Result degrades instead of erroring.
type Classifier interface {
	Classify(ctx context.Context, commentID, content string) classifier.Result
}

// Notifier is the human-review notification surface. Implementations must
// not surface transient delivery failures as moderation failures; the
// service absorbs and logs them.
type Notifier interface {
	NotifyPendingComment(ctx context.Context, comment *models.Comment, rec *models.ModerationStatusRecord) error
	NotifyStatusChanged(ctx context.Context, comment *models.Comment, rec *models.ModerationStatusRecord) error
	NotifyClassificationUpdated(ctx context.Context, comment *models.Comment, rec *models.ModerationStatusRecord) error
	NotifyReportCreated(ctx context.Context, report *models.Report, comment *models.Comment) error
}

// NoopNotifier is selected at startup when no chat provider is configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyPendingComment(context.Context, *models.Comment, *models.ModerationStatusRecord) error {
	return nil
}
func (NoopNotifier) NotifyStatusChanged(context.Context, *models.Comment, *models.ModerationStatusRecord) error {
	return nil
}
func (NoopNotifier) NotifyClassificationUpdated(context.Context, *models.Comment, *models.ModerationStatusRecord) error {
	return nil
}
func (NoopNotifier) NotifyReportCreated(context.Context, *models.Report, *models.Comment) error {
	return nil
}

// Service is the moderation state machine. Every comment enters it on
// creation and re-enters on edit; manual status changes also go through it.
type Service struct {
	comments       repository.CommentRepository
	classifier     Classifier
	notifier       Notifier
	enabled        bool
	knownReactions map[string]struct{}
	logger         *zap.Logger
}

func NewService(
	comments repository.CommentRepository,
	cls Classifier,
	notifier Notifier,
	enabled bool,
	knownReactions []string,
	logger *zap.Logger,
) *Service {
	reactions := make(map[string]struct{}, len(knownReactions))
	for _, r := range knownReactions {
		reactions[r] = struct{}{}
	}
	return &Service{
		comments:       comments,
		classifier:     cls,
		notifier:       notifier,
		enabled:        enabled,
		knownReactions: reactions,
		logger:         logger,
	}
}

// InitialStatus decides the status a new comment row is stored with.
// Disabled moderation approves everything; known reactions are low-risk and
// high-volume, so they bypass review entirely.
func (s *Service) InitialStatus(c *models.Comment) string {
	if !s.enabled {
		return models.ModerationStatusApproved
	}
	if s.isKnownReaction(c.CommentType, c.Content) {
		return models.ModerationStatusApproved
	}
	return models.ModerationStatusPending
}

// ModerateCreated runs the classifier path for a newly inserted comment and
// triggers the one-time "new pending" notification when this is the first
// time a status record exists for the comment.
func (s *Service) ModerateCreated(ctx context.Context, c *models.Comment) error {
	if !s.enabled || s.isKnownReaction(c.CommentType, c.Content) {
		return nil
	}

	res := s.classifier.Classify(ctx, c.ID, c.Content)
	labels := marshalLabels(res.Labels)

	rec, err := s.comments.GetModerationStatus(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load moderation status: %w", err)
	}
	if rec != nil {
		// A record already exists; reuse it and never renotify.
		return nil
	}

	newRec := &models.ModerationStatusRecord{
		CommentID:        c.ID,
		Status:           models.ModerationStatusPending,
		ChangedAt:        time.Now().UTC(),
		ClassifierScore:  res.Score,
		ClassifierLabels: labels,
	}
	created, err := s.comments.CreateModerationStatus(ctx, newRec)
	if err != nil {
		return fmt.Errorf("failed to create moderation status: %w", err)
	}

	if !res.Skipped {
		if err := s.comments.UpdateClassification(ctx, c.ID, res.Score, labels); err != nil {
			s.logger.Error("Failed to persist classification", zap.String("comment_id", c.ID), zap.Error(err))
		}
	}

	if created {
		if err := s.notifier.NotifyPendingComment(ctx, c, newRec); err != nil {
			s.logger.Error("Failed to send pending review notification",
				zap.String("comment_id", c.ID), zap.Error(err))
		}
	}
	return nil
}

// ModerateUpdated re-enters the state machine for an edited comment.
// Byte-identical content is a pure no-op: same status, same classifier
// result, no notification of any kind.
func (s *Service) ModerateUpdated(ctx context.Context, commentID, newContent string, newMetadata []byte) (*models.Comment, error) {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCommentNotFound
	}

	if newContent == c.Content {
		return c, nil
	}

	if err := s.comments.UpdateContent(ctx, commentID, newContent, newMetadata); err != nil {
		return nil, fmt.Errorf("failed to persist edited content: %w", err)
	}
	c.Content = newContent
	c.Metadata = newMetadata

	if !s.enabled || s.isKnownReaction(c.CommentType, newContent) {
		return c, nil
	}

	// Content changed, so the cached classifier result is stale by key.
	res := s.classifier.Classify(ctx, commentID, newContent)
	if res.Skipped {
		return c, nil
	}

	labels := marshalLabels(res.Labels)
	if err := s.comments.UpdateClassification(ctx, commentID, res.Score, labels); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed classification: %w", err)
	}
	c.ModerationClassifierScore = res.Score
	c.ModerationClassifierLabels = labels

	// Refreshing the review message's classification display is decoupled
	// from the pending-creation path: edits never re-trigger "new pending".
	rec, err := s.comments.GetModerationStatus(ctx, commentID)
	if err == nil && rec != nil {
		rec.ClassifierScore = res.Score
		rec.ClassifierLabels = labels
		if nerr := s.notifier.NotifyClassificationUpdated(ctx, c, rec); nerr != nil {
			s.logger.Error("Failed to refresh classification display",
				zap.String("comment_id", commentID), zap.Error(nerr))
		}
	}

	return c, nil
}

// SetStatus applies a manual status change from a human actor. Conflicts
// (already in that status, stale revision, missing record) surface as the
// repository's sentinel errors.
func (s *Service) SetStatus(ctx context.Context, commentID, status string, expectedRevision *int) (*models.Comment, error) {
	switch status {
	case models.ModerationStatusPending, models.ModerationStatusApproved, models.ModerationStatusRejected:
	default:
		return nil, ErrInvalidStatus
	}

	c, err := s.comments.ChangeModerationStatus(ctx, commentID, status, expectedRevision)
	if err != nil {
		return nil, err
	}

	rec, recErr := s.comments.GetModerationStatus(ctx, commentID)
	if recErr == nil && rec != nil {
		if nerr := s.notifier.NotifyStatusChanged(ctx, c, rec); nerr != nil {
			s.logger.Error("Failed to update review message",
				zap.String("comment_id", commentID), zap.Error(nerr))
		}
	}

	return c, nil
}

func (s *Service) isKnownReaction(commentType int16, content string) bool {
	if commentType != models.CommentTypeReaction {
		return false
	}
	_, ok := s.knownReactions[content]
	return ok
}

func marshalLabels(labels map[string]float64) []byte {
	if labels == nil {
		labels = map[string]float64{}
	}
	out, err := json.Marshal(labels)
	if err != nil {
		return []byte("{}")
	}
	return out
}

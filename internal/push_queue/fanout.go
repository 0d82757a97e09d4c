package push_queue

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

// Fanout turns one new top-level comment into one queue row per interested
// application: apps whose signer produced the comment plus apps opted into
// cross-app activity.
type Fanout struct {
	queue  repository.QueueRepository
	logger *zap.Logger
}

func NewFanout(queue repository.QueueRepository, logger *zap.Logger) *Fanout {
	return &Fanout{queue: queue, logger: logger}
}

// EnqueueForComment stages push notifications for a newly ingested root
// comment. Re-enqueueing the same (comment, app) pair is a no-op.
func (f *Fanout) EnqueueForComment(ctx context.Context, c *models.Comment) error {
	apps, err := f.queue.ListAppsForSigner(ctx, c.AppSigner)
	if err != nil {
		return fmt.Errorf("failed to list fan-out apps: %w", err)
	}

	n := RenderNotification(c)
	for _, app := range apps {
		subscribers, err := f.queue.ListSubscribers(ctx, app.ID)
		if err != nil {
			f.logger.Error("Failed to list push subscribers",
				zap.String("app_id", app.ID.String()), zap.Error(err))
			continue
		}

		item := &models.QueueItem{
			CommentID:      c.ID,
			AppID:          app.ID,
			SubscriberIDs:  subscribers,
			Title:          n.Title,
			Body:           n.Body,
			TargetURL:      n.TargetURL,
			IdempotencyKey: idempotencyKey(c.ID, app.ID.String()),
		}
		if err := f.queue.Enqueue(ctx, item); err != nil {
			f.logger.Error("Failed to enqueue push notification",
				zap.String("comment_id", c.ID),
				zap.String("app_id", app.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// RenderNotification builds the push payload for a comment, truncated to
// the provider's limits.
func RenderNotification(c *models.Comment) Notification {
	return Notification{
		Title:     truncate("New comment from "+shortAddress(c.Author), MaxTitleLen),
		Body:      truncate(c.Content, MaxBodyLen),
		TargetURL: truncate(c.TargetURI, MaxTargetURLLen),
	}
}

func idempotencyKey(commentID, appID string) string {
	sum := sha3.Sum256([]byte(commentID + ":" + appID))
	return hex.EncodeToString(sum[:16])
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary so the truncated payload stays valid UTF-8.
	cut := limit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

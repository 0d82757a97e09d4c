package push_queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

const dispatchTimeout = 15 * time.Second

// Worker is the single logical consumer of the push notification queue. It
// claims one item at a time via the repository's atomic conditional update,
// dispatches a bounded subscriber batch, and persists the outcome.
type Worker struct {
	queue       repository.QueueRepository
	provider    Provider
	maxAttempts int
	pollDelay   time.Duration
	batchSize   int
	logger      *zap.Logger
}

func NewWorker(
	queue repository.QueueRepository,
	provider Provider,
	maxAttempts int,
	pollDelay time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Worker {
	if batchSize <= 0 || batchSize > SubscriberBatchCeiling {
		batchSize = SubscriberBatchCeiling
	}
	return &Worker{
		queue:       queue,
		provider:    provider,
		maxAttempts: maxAttempts,
		pollDelay:   pollDelay,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Run processes the queue until ctx is cancelled. Cancellation is checked
// at the top of every iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Push notification worker started.")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Push notification worker stopped.")
			return
		default:
		}

		item, err := w.queue.ClaimNext(ctx, w.maxAttempts)
		if err != nil {
			w.logger.Error("Failed to claim queue item", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if item == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, item)
	}
}

// process dispatches at most one subscriber batch for a claimed item.
func (w *Worker) process(ctx context.Context, item *models.QueueItem) {
	// Nothing left to notify; complete without an API call.
	if len(item.SubscriberIDs) == 0 {
		if err := w.queue.MarkCompleted(ctx, item.ID); err != nil {
			w.logger.Error("Failed to complete queue item", zap.Int64("item_id", item.ID), zap.Error(err))
		}
		return
	}

	batch := item.SubscriberIDs
	if len(batch) > w.batchSize {
		batch = batch[:w.batchSize]
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	err := w.provider.Notify(dispatchCtx, batch, Notification{
		Title:     item.Title,
		Body:      item.Body,
		TargetURL: item.TargetURL,
	})
	cancel()

	if err != nil {
		w.logger.Warn("Push dispatch failed",
			zap.Int64("item_id", item.ID),
			zap.Int("attempts", item.Attempts+1),
			zap.Error(err))
		if ferr := w.queue.MarkFailed(ctx, item.ID); ferr != nil {
			w.logger.Error("Failed to mark queue item failed", zap.Int64("item_id", item.ID), zap.Error(ferr))
		}
		return
	}

	remaining := item.SubscriberIDs[len(batch):]
	if len(remaining) == 0 {
		if err := w.queue.MarkCompleted(ctx, item.ID); err != nil {
			w.logger.Error("Failed to complete queue item", zap.Int64("item_id", item.ID), zap.Error(err))
		}
		return
	}

	if err := w.queue.ResetPending(ctx, item.ID, remaining); err != nil {
		w.logger.Error("Failed to reset queue item for next pass", zap.Int64("item_id", item.ID), zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollDelay):
	}
}

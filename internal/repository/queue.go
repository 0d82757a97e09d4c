package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

type QueueRepository interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	ClaimNext(ctx context.Context, maxAttempts int) (*models.QueueItem, error)
	MarkCompleted(ctx context.Context, id int64) error
	ResetPending(ctx context.Context, id int64, remaining []int64) error
	MarkFailed(ctx context.Context, id int64) error

	ListAppsForSigner(ctx context.Context, signer string) ([]models.App, error)
	ListSubscribers(ctx context.Context, appID uuid.UUID) ([]int64, error)
}

type queueRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewQueueRepository(db *sqlx.DB, logger *zap.Logger) QueueRepository {
	return &queueRepository{db: db, logger: logger}
}

const queueColumns = `id, comment_id, app_id, status, subscriber_ids, title, body, target_url,
	attempts, idempotency_key, created_at, updated_at`

func (r *queueRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	query := `INSERT INTO notification_queue
	          (comment_id, app_id, status, subscriber_ids, title, body, target_url, attempts, idempotency_key, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, now(), now())
	          ON CONFLICT (comment_id, app_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		item.CommentID, item.AppID, models.QueueStatusPending, item.SubscriberIDs,
		item.Title, item.Body, item.TargetURL, item.IdempotencyKey)
	return err
}

// ClaimNext atomically claims the oldest eligible item for exclusive
// processing. Eligible means pending, or failed with attempts still under
// the ceiling. SKIP LOCKED guarantees a concurrent claimer observes no
// eligible row instead of blocking or double-claiming.
func (r *queueRepository) ClaimNext(ctx context.Context, maxAttempts int) (*models.QueueItem, error) {
	query := `UPDATE notification_queue SET status = $1, updated_at = now()
	          WHERE id = (
	              SELECT id FROM notification_queue
	              WHERE status = $2 OR (status = $3 AND attempts < $4)
	              ORDER BY created_at, id
	              FOR UPDATE SKIP LOCKED
	              LIMIT 1
	          )
	          RETURNING ` + queueColumns

	var item models.QueueItem
	err := r.db.QueryRowxContext(ctx, query,
		models.QueueStatusProcessing, models.QueueStatusPending, models.QueueStatusFailed, maxAttempts).StructScan(&item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *queueRepository) MarkCompleted(ctx context.Context, id int64) error {
	query := `UPDATE notification_queue SET status = $1, subscriber_ids = '{}', updated_at = now() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, models.QueueStatusCompleted, id)
	return err
}

func (r *queueRepository) ResetPending(ctx context.Context, id int64, remaining []int64) error {
	query := `UPDATE notification_queue SET status = $1, subscriber_ids = $2, updated_at = now() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, models.QueueStatusPending, pq.Int64Array(remaining), id)
	return err
}

// MarkFailed records one failed dispatch attempt. Attempts only ever grow,
// and only on failure.
func (r *queueRepository) MarkFailed(ctx context.Context, id int64) error {
	query := `UPDATE notification_queue SET status = $1, attempts = attempts + 1, updated_at = now() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, models.QueueStatusFailed, id)
	return err
}

// ListAppsForSigner returns the fan-out targets for a comment signed by the
// given app signer: the signer's own apps plus apps opted into cross-app
// activity.
func (r *queueRepository) ListAppsForSigner(ctx context.Context, signer string) ([]models.App, error) {
	var apps []models.App
	query := `SELECT id, name, signer, receive_cross_app FROM apps WHERE signer = $1 OR receive_cross_app = true`
	if err := r.db.SelectContext(ctx, &apps, query, signer); err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *queueRepository) ListSubscribers(ctx context.Context, appID uuid.UUID) ([]int64, error) {
	var ids pq.Int64Array
	query := `SELECT COALESCE(array_agg(subscriber_id ORDER BY subscriber_id), '{}') FROM push_subscriptions WHERE app_id = $1`
	if err := r.db.GetContext(ctx, &ids, query, appID); err != nil {
		return nil, err
	}
	return []int64(ids), nil
}

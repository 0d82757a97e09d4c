package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Push notification queue item statuses.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// QueueItem is one durable outbound push notification batch, keyed by
// (comment, app). SubscriberIDs holds the subscribers not yet notified; the
// item is completed once the list is empty.
type QueueItem struct {
	ID             int64         `db:"id"`
	CommentID      string        `db:"comment_id"`
	AppID          uuid.UUID     `db:"app_id"`
	Status         string        `db:"status"`
	SubscriberIDs  pq.Int64Array `db:"subscriber_ids"`
	Title          string        `db:"title"`
	Body           string        `db:"body"`
	TargetURL      string        `db:"target_url"`
	Attempts       int           `db:"attempts"`
	IdempotencyKey string        `db:"idempotency_key"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

// App is a client application registered for push fan-out.
type App struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	Signer          string    `db:"signer"`
	ReceiveCrossApp bool      `db:"receive_cross_app"`
}

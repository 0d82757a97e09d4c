package models

import (
	"time"

	"github.com/google/uuid"
)

// Report statuses.
const (
	ReportStatusPending  = "pending"
	ReportStatusResolved = "resolved"
	ReportStatusClosed   = "closed"
)

// Report is a user-filed complaint about a comment, reviewed through the
// same chat loop as pending comments.
type Report struct {
	ID        uuid.UUID `db:"id"`
	CommentID string    `db:"comment_id"`
	Reportee  string    `db:"reportee"`
	Message   string    `db:"message"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MutedAccount is one spam-registry entry.
type MutedAccount struct {
	Address   string    `db:"address"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

package models

import "time"

// Moderation statuses a comment can be in.
const (
	ModerationStatusPending  = "pending"
	ModerationStatusApproved = "approved"
	ModerationStatusRejected = "rejected"
)

// Comment types carried in the signed payload.
const (
	CommentTypeStandard = 0
	CommentTypeReaction = 1
)

// Comment is one verified on-chain comment. ID is the 0x-hex keccak hash of
// the signed fields, so re-ingesting the same transaction produces the same
// row.
type Comment struct {
	ID                         string    `db:"id"`
	Author                     string    `db:"author"`
	AppSigner                  string    `db:"app_signer"`
	ChannelID                  string    `db:"channel_id"`
	ParentID                   *string   `db:"parent_id"`
	TargetURI                  string    `db:"target_uri"`
	Content                    string    `db:"content"`
	Metadata                   []byte    `db:"metadata"`
	CommentType                int16     `db:"comment_type"`
	ChainID                    int64     `db:"chain_id"`
	TxHash                     string    `db:"tx_hash"`
	LogIndex                   int64     `db:"log_index"`
	CreatedAt                  time.Time `db:"created_at"`
	UpdatedAt                  time.Time `db:"updated_at"`
	ModerationStatus           string    `db:"moderation_status"`
	ModerationStatusChangedAt  time.Time `db:"moderation_status_changed_at"`
	ModerationClassifierScore  float64   `db:"moderation_classifier_score"`
	ModerationClassifierLabels []byte    `db:"moderation_classifier_labels"`
}

// ModerationStatusRecord tracks the moderation state of one comment. Its
// creation is what triggers the single "new pending" review notification;
// Revision increments on every status change and pins callback actions to
// the state they were issued against.
type ModerationStatusRecord struct {
	CommentID        string    `db:"comment_id"`
	Status           string    `db:"status"`
	ChangedAt        time.Time `db:"changed_at"`
	ClassifierScore  float64   `db:"classifier_score"`
	ClassifierLabels []byte    `db:"classifier_labels"`
	Revision         int       `db:"revision"`
	MessageID        *int      `db:"message_id"`
}

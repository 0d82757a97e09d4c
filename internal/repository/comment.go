package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

var (
	ErrStatusNotFound = errors.New("moderation status record not found")
	ErrSameStatus     = errors.New("comment is already in the requested status")
	ErrStaleRevision  = errors.New("moderation status record changed since the action was issued")
)

type CommentRepository interface {
	InsertBatch(ctx context.Context, comments []*models.Comment) (inserted []string, err error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByModerationStatus(ctx context.Context, status string, limit int) ([]*models.Comment, error)
	UpdateContent(ctx context.Context, id, content string, metadata []byte) error

	GetModerationStatus(ctx context.Context, commentID string) (*models.ModerationStatusRecord, error)
	CreateModerationStatus(ctx context.Context, rec *models.ModerationStatusRecord) (created bool, err error)
	UpdateClassification(ctx context.Context, commentID string, score float64, labels []byte) error
	SetNotificationMessageID(ctx context.Context, commentID string, messageID int) error
	ChangeModerationStatus(ctx context.Context, commentID, newStatus string, expectedRevision *int) (*models.Comment, error)
}

type commentRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewCommentRepository(db *sqlx.DB, logger *zap.Logger) CommentRepository {
	return &commentRepository{db: db, logger: logger}
}

const commentColumns = `id, author, app_signer, channel_id, parent_id, target_uri, content, metadata,
	comment_type, chain_id, tx_hash, log_index, created_at, updated_at,
	moderation_status, moderation_status_changed_at, moderation_classifier_score, moderation_classifier_labels`

// InsertBatch inserts all comments in one statement. Rows whose id already
// exists are skipped, so re-processing a block is a no-op; the returned ids
// are only the rows that were actually created.
func (r *commentRepository) InsertBatch(ctx context.Context, comments []*models.Comment) ([]string, error) {
	if len(comments) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(comments))
	args := make([]interface{}, 0, len(comments)*18)
	for i, c := range comments {
		base := i * 18
		ph := make([]string, 18)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			c.ID, c.Author, c.AppSigner, c.ChannelID, c.ParentID, c.TargetURI, c.Content, c.Metadata,
			c.CommentType, c.ChainID, c.TxHash, c.LogIndex, c.CreatedAt, c.UpdatedAt,
			c.ModerationStatus, c.ModerationStatusChangedAt, c.ModerationClassifierScore, c.ModerationClassifierLabels)
	}

	query := fmt.Sprintf(`INSERT INTO comments (%s) VALUES %s ON CONFLICT (id) DO NOTHING RETURNING id`,
		commentColumns, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment batch: %w", err)
	}
	defer rows.Close()

	var inserted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		inserted = append(inserted, id)
	}
	return inserted, rows.Err()
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	err := r.db.GetContext(ctx, &c, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *commentRepository) ListByModerationStatus(ctx context.Context, status string, limit int) ([]*models.Comment, error) {
	var comments []*models.Comment
	query := `SELECT ` + commentColumns + ` FROM comments WHERE moderation_status = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &comments, query, status, limit); err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *commentRepository) UpdateContent(ctx context.Context, id, content string, metadata []byte) error {
	query := `UPDATE comments SET content = $1, metadata = $2, updated_at = now() WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, content, metadata, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("comment not found: %s", id)
	}
	return nil
}

func (r *commentRepository) GetModerationStatus(ctx context.Context, commentID string) (*models.ModerationStatusRecord, error) {
	var rec models.ModerationStatusRecord
	query := `SELECT comment_id, status, changed_at, classifier_score, classifier_labels, revision, message_id
	          FROM comment_moderation_statuses WHERE comment_id = $1`
	err := r.db.GetContext(ctx, &rec, query, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateModerationStatus inserts the status record for a comment. The caller
// uses the created flag to trigger the one-time "new pending" notification.
func (r *commentRepository) CreateModerationStatus(ctx context.Context, rec *models.ModerationStatusRecord) (bool, error) {
	query := `INSERT INTO comment_moderation_statuses (comment_id, status, changed_at, classifier_score, classifier_labels, revision)
	          VALUES ($1, $2, $3, $4, $5, 0) ON CONFLICT (comment_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, rec.CommentID, rec.Status, rec.ChangedAt, rec.ClassifierScore, rec.ClassifierLabels)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *commentRepository) UpdateClassification(ctx context.Context, commentID string, score float64, labels []byte) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE comment_moderation_statuses SET classifier_score = $1, classifier_labels = $2 WHERE comment_id = $3`,
		score, labels, commentID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE comments SET moderation_classifier_score = $1, moderation_classifier_labels = $2 WHERE id = $3`,
		score, labels, commentID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *commentRepository) SetNotificationMessageID(ctx context.Context, commentID string, messageID int) error {
	query := `UPDATE comment_moderation_statuses SET message_id = $1 WHERE comment_id = $2`
	_, err := r.db.ExecContext(ctx, query, messageID, commentID)
	return err
}

// ChangeModerationStatus applies a manual status change. The status record
// is locked for the duration of the transaction, so two concurrent changes
// on the same comment serialize and the loser observes the already-applied
// state as ErrSameStatus.
func (r *commentRepository) ChangeModerationStatus(ctx context.Context, commentID, newStatus string, expectedRevision *int) (*models.Comment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rec models.ModerationStatusRecord
	err = tx.GetContext(ctx, &rec,
		`SELECT comment_id, status, changed_at, classifier_score, classifier_labels, revision, message_id
		 FROM comment_moderation_statuses WHERE comment_id = $1 FOR UPDATE`, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}

	if expectedRevision != nil && rec.Revision != *expectedRevision {
		return nil, ErrStaleRevision
	}
	if rec.Status == newStatus {
		return nil, ErrSameStatus
	}

	// Revision wraps at the callback codec's 2-byte field width.
	_, err = tx.ExecContext(ctx,
		`UPDATE comment_moderation_statuses
		 SET status = $1, changed_at = now(), revision = MOD(revision + 1, 65536)
		 WHERE comment_id = $2`, newStatus, commentID)
	if err != nil {
		return nil, err
	}

	var c models.Comment
	err = tx.QueryRowxContext(ctx,
		`UPDATE comments SET moderation_status = $1, moderation_status_changed_at = now()
		 WHERE id = $2 RETURNING `+commentColumns, newStatus, commentID).StructScan(&c)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

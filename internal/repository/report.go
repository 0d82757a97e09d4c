package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

var ErrReportNotFound = errors.New("report not found")

type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, newStatus string) (*models.Report, error)
}

type reportRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewReportRepository(db *sqlx.DB, logger *zap.Logger) ReportRepository {
	return &reportRepository{db: db, logger: logger}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	query := `INSERT INTO reports (id, comment_id, reportee, message, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING created_at, updated_at`
	return r.db.QueryRowxContext(ctx, query,
		report.ID, report.CommentID, report.Reportee, report.Message, report.Status).
		Scan(&report.CreatedAt, &report.UpdatedAt)
}

func (r *reportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	query := `SELECT id, comment_id, reportee, message, status, created_at, updated_at FROM reports WHERE id = $1`
	err := r.db.GetContext(ctx, &report, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

// ChangeStatus updates a report's status under a row lock, with the same
// conflict semantics as comment moderation changes.
func (r *reportRepository) ChangeStatus(ctx context.Context, id uuid.UUID, newStatus string) (*models.Report, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var report models.Report
	err = tx.GetContext(ctx, &report,
		`SELECT id, comment_id, reportee, message, status, created_at, updated_at FROM reports WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}

	if report.Status == newStatus {
		return nil, ErrSameStatus
	}

	err = tx.QueryRowxContext(ctx,
		`UPDATE reports SET status = $1, updated_at = now() WHERE id = $2 RETURNING updated_at`,
		newStatus, id).Scan(&report.UpdatedAt)
	if err != nil {
		return nil, err
	}
	report.Status = newStatus

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &report, nil
}

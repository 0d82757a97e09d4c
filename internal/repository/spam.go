package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SpamRegistry is the queryable set of addresses whose activity is ignored.
type SpamRegistry interface {
	IsMuted(ctx context.Context, address string) (bool, error)
	Mute(ctx context.Context, address, reason string) error
	Unmute(ctx context.Context, address string) error
}

type spamRegistry struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSpamRegistry(db *sqlx.DB, logger *zap.Logger) SpamRegistry {
	return &spamRegistry{db: db, logger: logger}
}

func (r *spamRegistry) IsMuted(ctx context.Context, address string) (bool, error) {
	var muted bool
	query := `SELECT EXISTS (SELECT 1 FROM muted_accounts WHERE address = $1)`
	err := r.db.GetContext(ctx, &muted, query, strings.ToLower(address))
	if err != nil {
		return false, err
	}
	return muted, nil
}

func (r *spamRegistry) Mute(ctx context.Context, address, reason string) error {
	query := `INSERT INTO muted_accounts (address, reason, created_at) VALUES ($1, $2, now())
	          ON CONFLICT (address) DO UPDATE SET reason = EXCLUDED.reason`
	_, err := r.db.ExecContext(ctx, query, strings.ToLower(address), reason)
	return err
}

func (r *spamRegistry) Unmute(ctx context.Context, address string) error {
	query := `DELETE FROM muted_accounts WHERE address = $1`
	_, err := r.db.ExecContext(ctx, query, strings.ToLower(address))
	return err
}

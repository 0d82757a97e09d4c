package block_processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

// ErrMissingBlock is the one fatal condition of block processing: the sync
// mechanism handed us nothing. It propagates so the caller retries instead
// of creating an ingestion gap that looks like "no activity".
var ErrMissingBlock = errors.New("block data is missing")

// Block is one already-fetched block with full transaction bodies, supplied
// by the external sync mechanism.
type Block struct {
	Number       uint64
	Time         uint64
	Transactions []Transaction
}

// Transaction is the slice of a transaction the decoder needs.
type Transaction struct {
	From  common.Address
	Hash  common.Hash
	Input []byte
}

// Moderator is the moderation service as seen from ingestion.
type Moderator interface {
	InitialStatus(c *models.Comment) string
	ModerateCreated(ctx context.Context, c *models.Comment) error
}

// PushFanout enqueues push notifications for new top-level activity.
type PushFanout interface {
	EnqueueForComment(ctx context.Context, c *models.Comment) error
}

// Processor extracts, verifies and stores comments from block data.
type Processor struct {
	comments  repository.CommentRepository
	spam      repository.SpamRegistry
	moderator Moderator
	fanout    PushFanout
	skipCache *SkipCache
	logger    *zap.Logger
}

func NewProcessor(
	comments repository.CommentRepository,
	spam repository.SpamRegistry,
	moderator Moderator,
	fanout PushFanout,
	skipCache *SkipCache,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		comments:  comments,
		spam:      spam,
		moderator: moderator,
		fanout:    fanout,
		skipCache: skipCache,
		logger:    logger,
	}
}

type decodedComment struct {
	envelope *CommentEnvelope
	id       common.Hash
	txHash   common.Hash
	txIndex  int
}

// ProcessBlock runs one block through the decode → verify → store pipeline.
// Malformed or badly signed transactions are skipped with a log; only
// missing block data or a storage failure propagate.
func (p *Processor) ProcessBlock(ctx context.Context, chainID uint64, block *Block) error {
	if block == nil {
		return ErrMissingBlock
	}

	if p.skipCache.Contains(chainID, block.Number) {
		p.logger.Debug("Block previously marked comment-free, skipping",
			zap.Uint64("chain_id", chainID), zap.Uint64("block", block.Number))
		return nil
	}

	decoded := p.decodeBlock(chainID, block)

	rows := make([]*models.Comment, 0, len(decoded))
	for _, d := range decoded {
		muted, err := p.spam.IsMuted(ctx, strings.ToLower(d.envelope.Payload.Author.Hex()))
		if err != nil {
			return fmt.Errorf("failed to query spam registry: %w", err)
		}
		if muted {
			p.logger.Debug("Skipping comment from muted author",
				zap.String("author", d.envelope.Payload.Author.Hex()),
				zap.String("tx_hash", d.txHash.Hex()))
			continue
		}

		row, err := p.buildRow(chainID, block, d)
		if err != nil {
			p.logger.Warn("Failed to stage decoded comment",
				zap.String("tx_hash", d.txHash.Hex()), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		p.skipCache.Mark(chainID, block.Number)
		return nil
	}

	insertedIDs, err := p.comments.InsertBatch(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to insert comments for block %d: %w", block.Number, err)
	}

	p.logger.Info("Block processed",
		zap.Uint64("chain_id", chainID),
		zap.Uint64("block", block.Number),
		zap.Int("decoded", len(rows)),
		zap.Int("inserted", len(insertedIDs)))

	inserted := make(map[string]struct{}, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = struct{}{}
	}

	for _, row := range rows {
		if _, ok := inserted[row.ID]; !ok {
			continue
		}

		if err := p.moderator.ModerateCreated(ctx, row); err != nil {
			p.logger.Error("Moderation of new comment failed", zap.String("comment_id", row.ID), zap.Error(err))
		}

		if row.ParentID == nil {
			if err := p.fanout.EnqueueForComment(ctx, row); err != nil {
				p.logger.Error("Push fan-out failed", zap.String("comment_id", row.ID), zap.Error(err))
			}
		}
	}

	return nil
}

// decodeBlock parses and signature-checks every transaction in the block.
// Decode and verification are pure, so transactions run in parallel; results
// come back in transaction order.
func (p *Processor) decodeBlock(chainID uint64, block *Block) []*decodedComment {
	results := make([]*decodedComment, len(block.Transactions))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range block.Transactions {
		g.Go(func() error {
			tx := block.Transactions[i]

			env, ok := ParseCommentSuffix(tx.Input)
			if !ok {
				return nil
			}

			hash, err := SigningHash(chainID, env.Payload)
			if err != nil {
				p.logger.Warn("Failed to hash comment payload",
					zap.String("tx_hash", tx.Hash.Hex()), zap.Error(err))
				return nil
			}

			if err := verifyEnvelope(hash, env, tx.From); err != nil {
				p.logger.Warn("Rejecting comment with invalid signature",
					zap.String("tx_hash", tx.Hash.Hex()), zap.Error(err))
				return nil
			}

			results[i] = &decodedComment{envelope: env, id: hash, txHash: tx.Hash, txIndex: i}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; per-tx failures only skip

	decoded := make([]*decodedComment, 0, len(results))
	for _, r := range results {
		if r != nil {
			decoded = append(decoded, r)
		}
	}
	return decoded
}

func (p *Processor) buildRow(chainID uint64, block *Block, d *decodedComment) (*models.Comment, error) {
	payload := d.envelope.Payload

	metadata, err := encodeMetadata(payload.Metadata)
	if err != nil {
		return nil, err
	}

	createdAt := time.Unix(int64(payload.CreatedAt), 0).UTC()
	if payload.CreatedAt == 0 {
		createdAt = time.Unix(int64(block.Time), 0).UTC()
	}

	row := &models.Comment{
		ID:                        strings.ToLower(d.id.Hex()),
		Author:                    strings.ToLower(payload.Author.Hex()),
		AppSigner:                 strings.ToLower(payload.App.Hex()),
		ChannelID:                 payload.ChannelID.String(),
		ParentID:                  normalizeParentID(payload.ParentID),
		TargetURI:                 NormalizeTargetURI(payload.TargetURI),
		Content:                   payload.Content,
		Metadata:                  metadata,
		CommentType:               int16(payload.CommentType),
		ChainID:                   int64(chainID),
		TxHash:                    strings.ToLower(d.txHash.Hex()),
		LogIndex:                  int64(d.txIndex),
		CreatedAt:                 createdAt,
		UpdatedAt:                 createdAt,
		ModerationStatusChangedAt: createdAt,
	}
	row.ModerationStatus = p.moderator.InitialStatus(row)
	return row, nil
}

func normalizeParentID(parent common.Hash) *string {
	if parent == (common.Hash{}) {
		return nil
	}
	id := strings.ToLower(parent.Hex())
	return &id
}

// NormalizeTargetURI puts a target reference into canonical form: trimmed,
// with lower-case scheme and host. Unparseable references are kept as
// trimmed free text rather than rejected.
func NormalizeTargetURI(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" {
		return trimmed
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

type metadataJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func encodeMetadata(entries []MetadataEntry) ([]byte, error) {
	out := make([]metadataJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, metadataJSON{
			Key:   e.Key.Hex(),
			Value: "0x" + common.Bytes2Hex(e.Value),
		})
	}
	return json.Marshal(out)
}

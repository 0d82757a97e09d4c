package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/block_processor"
)

// Poller walks the chain block by block and feeds each block into the
// comment processor. The cursor is in-memory; ingestion is idempotent, so
// replaying blocks after a restart is harmless.
type Poller struct {
	client       *Client
	processor    *block_processor.Processor
	chainID      uint64
	next         uint64
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewPoller(
	client *Client,
	processor *block_processor.Processor,
	chainID uint64,
	startBlock uint64,
	pollInterval time.Duration,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		client:       client,
		processor:    processor,
		chainID:      chainID,
		next:         startBlock,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run drives the ingestion loop until the context is cancelled. A start
// block of zero means "begin at the current head".
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Block poller starting",
		zap.Uint64("chain_id", p.chainID), zap.Uint64("start_block", p.next))

	if p.next == 0 {
		for {
			head, err := p.client.Head(ctx, p.chainID)
			if err == nil {
				p.next = head
				break
			}
			p.logger.Error("Failed to fetch chain head, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
		}
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Block poller shutting down...")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes every block available right now, stopping at the head or
// on the first error. The cursor only advances past a fully processed
// block.
func (p *Poller) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		block, err := p.client.GetBlock(ctx, p.chainID, p.next)
		if err != nil {
			p.logger.Error("Failed to fetch block",
				zap.Uint64("chain_id", p.chainID), zap.Uint64("block", p.next), zap.Error(err))
			return
		}
		if block == nil {
			// Caught up with the head.
			return
		}

		if err := p.processor.ProcessBlock(ctx, p.chainID, block); err != nil {
			p.logger.Error("Failed to process block, will retry",
				zap.Uint64("chain_id", p.chainID), zap.Uint64("block", p.next), zap.Error(err))
			return
		}
		p.next++
	}
}

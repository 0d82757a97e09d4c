package block_processor

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

type memCommentRepo struct {
	rows             map[string]*models.Comment
	insertBatchCalls int
}

func newMemCommentRepo() *memCommentRepo {
	return &memCommentRepo{rows: map[string]*models.Comment{}}
}

func (m *memCommentRepo) InsertBatch(_ context.Context, comments []*models.Comment) ([]string, error) {
	m.insertBatchCalls++
	var inserted []string
	for _, c := range comments {
		if _, exists := m.rows[c.ID]; exists {
			continue
		}
		m.rows[c.ID] = c
		inserted = append(inserted, c.ID)
	}
	return inserted, nil
}

func (m *memCommentRepo) GetByID(_ context.Context, id string) (*models.Comment, error) {
	return m.rows[id], nil
}

func (m *memCommentRepo) ListByModerationStatus(context.Context, string, int) ([]*models.Comment, error) {
	return nil, nil
}
func (m *memCommentRepo) UpdateContent(context.Context, string, string, []byte) error { return nil }
func (m *memCommentRepo) GetModerationStatus(context.Context, string) (*models.ModerationStatusRecord, error) {
	return nil, nil
}
func (m *memCommentRepo) CreateModerationStatus(context.Context, *models.ModerationStatusRecord) (bool, error) {
	return true, nil
}
func (m *memCommentRepo) UpdateClassification(context.Context, string, float64, []byte) error {
	return nil
}
func (m *memCommentRepo) SetNotificationMessageID(context.Context, string, int) error { return nil }
func (m *memCommentRepo) ChangeModerationStatus(context.Context, string, string, *int) (*models.Comment, error) {
	return nil, nil
}

type memSpamRegistry struct {
	muted map[string]bool
}

func (m *memSpamRegistry) IsMuted(_ context.Context, address string) (bool, error) {
	return m.muted[strings.ToLower(address)], nil
}
func (m *memSpamRegistry) Mute(_ context.Context, address, _ string) error {
	m.muted[strings.ToLower(address)] = true
	return nil
}
func (m *memSpamRegistry) Unmute(_ context.Context, address string) error {
	delete(m.muted, strings.ToLower(address))
	return nil
}

type recordingModerator struct {
	created []string
}

func (r *recordingModerator) InitialStatus(*models.Comment) string {
	return models.ModerationStatusPending
}
func (r *recordingModerator) ModerateCreated(_ context.Context, c *models.Comment) error {
	r.created = append(r.created, c.ID)
	return nil
}

type recordingFanout struct {
	enqueued []string
}

func (r *recordingFanout) EnqueueForComment(_ context.Context, c *models.Comment) error {
	r.enqueued = append(r.enqueued, c.ID)
	return nil
}

type pipeline struct {
	processor *Processor
	repo      *memCommentRepo
	spam      *memSpamRegistry
	moderator *recordingModerator
	fanout    *recordingFanout
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		repo:      newMemCommentRepo(),
		spam:      &memSpamRegistry{muted: map[string]bool{}},
		moderator: &recordingModerator{},
		fanout:    &recordingFanout{},
	}
	p.processor = NewProcessor(p.repo, p.spam, p.moderator, p.fanout, NewSkipCache(100, time.Minute), zap.NewNop())
	return p
}

// commentTx builds a signed comment transaction submitted by a relayer.
func commentTx(t *testing.T, chainID uint64, appKey, authorKey *ecdsa.PrivateKey, content string, parent common.Hash) Transaction {
	t.Helper()

	p := CommentPayload{
		Author:    crypto.PubkeyToAddress(authorKey.PublicKey),
		App:       crypto.PubkeyToAddress(appKey.PublicKey),
		ChannelID: big.NewInt(1),
		ParentID:  parent,
		TargetURI: "HTTPS://Example.COM/thread",
		Content:   content,
		CreatedAt: 1700000000,
	}

	hash, err := SigningHash(chainID, p)
	require.NoError(t, err)
	appSig, err := crypto.Sign(hash.Bytes(), appKey)
	require.NoError(t, err)
	authorSig, err := crypto.Sign(hash.Bytes(), authorKey)
	require.NoError(t, err)

	input, err := AppendCommentSuffix([]byte{0x01, 0x02}, CommentEnvelope{
		Payload:   p,
		AppSig:    appSig,
		AuthorSig: authorSig,
	})
	require.NoError(t, err)

	return Transaction{
		From:  common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Hash:  crypto.Keccak256Hash([]byte(content)),
		Input: input,
	}
}

func TestProcessBlockMissing(t *testing.T) {
	p := newPipeline(t)
	err := p.processor.ProcessBlock(context.Background(), 8453, nil)
	assert.ErrorIs(t, err, ErrMissingBlock)
}

func TestProcessBlockStoresVerifiedComments(t *testing.T) {
	appKey, _ := crypto.GenerateKey()
	authorKey, _ := crypto.GenerateKey()
	p := newPipeline(t)

	block := &Block{
		Number: 10,
		Time:   1700000100,
		Transactions: []Transaction{
			{From: common.Address{}, Hash: common.Hash{}, Input: []byte{0xde, 0xad}}, // not a comment
			commentTx(t, 8453, appKey, authorKey, "first", common.Hash{}),
		},
	}

	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	require.Len(t, p.repo.rows, 1)
	require.Len(t, p.moderator.created, 1)
	require.Len(t, p.fanout.enqueued, 1, "root comments fan out")

	for id, row := range p.repo.rows {
		assert.Equal(t, strings.ToLower(id), id, "ids stored lower-case")
		assert.Equal(t, "https://example.com/thread", row.TargetURI, "target uri normalized")
		assert.Equal(t, models.ModerationStatusPending, row.ModerationStatus)
		assert.Nil(t, row.ParentID)
	}
}

func TestProcessBlockRepliesDoNotFanOut(t *testing.T) {
	appKey, _ := crypto.GenerateKey()
	authorKey, _ := crypto.GenerateKey()
	p := newPipeline(t)

	parent := crypto.Keccak256Hash([]byte("parent"))
	block := &Block{
		Number:       11,
		Time:         1700000100,
		Transactions: []Transaction{commentTx(t, 8453, appKey, authorKey, "a reply", parent)},
	}

	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	require.Len(t, p.moderator.created, 1)
	assert.Empty(t, p.fanout.enqueued)

	for _, row := range p.repo.rows {
		require.NotNil(t, row.ParentID)
		assert.Equal(t, strings.ToLower(parent.Hex()), *row.ParentID)
	}
}

func TestProcessBlockIsIdempotent(t *testing.T) {
	appKey, _ := crypto.GenerateKey()
	authorKey, _ := crypto.GenerateKey()
	p := newPipeline(t)

	block := &Block{
		Number:       12,
		Time:         1700000100,
		Transactions: []Transaction{commentTx(t, 8453, appKey, authorKey, "once", common.Hash{})},
	}

	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))

	assert.Len(t, p.repo.rows, 1)
	assert.Len(t, p.moderator.created, 1, "replayed blocks do not re-moderate")
	assert.Len(t, p.fanout.enqueued, 1, "replayed blocks do not re-enqueue pushes")
}

func TestProcessBlockSkipsMutedAuthors(t *testing.T) {
	appKey, _ := crypto.GenerateKey()
	authorKey, _ := crypto.GenerateKey()
	p := newPipeline(t)

	author := crypto.PubkeyToAddress(authorKey.PublicKey)
	require.NoError(t, p.spam.Mute(context.Background(), author.Hex(), "spam"))

	block := &Block{
		Number:       13,
		Time:         1700000100,
		Transactions: []Transaction{commentTx(t, 8453, appKey, authorKey, "unwanted", common.Hash{})},
	}

	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	assert.Empty(t, p.repo.rows)
	assert.Empty(t, p.moderator.created)
}

func TestProcessBlockRejectsBadSignature(t *testing.T) {
	appKey, _ := crypto.GenerateKey()
	authorKey, _ := crypto.GenerateKey()
	p := newPipeline(t)

	tx := commentTx(t, 8453, appKey, authorKey, "tampered", common.Hash{})
	// Flip a byte in the envelope region so the content no longer matches
	// the signatures.
	env, ok := ParseCommentSuffix(tx.Input)
	require.True(t, ok)
	env.Payload.Content = "tampered!"
	input, err := AppendCommentSuffix(nil, *env)
	require.NoError(t, err)
	tx.Input = input

	block := &Block{Number: 14, Time: 1700000100, Transactions: []Transaction{tx}}
	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	assert.Empty(t, p.repo.rows)
}

func TestProcessBlockMarksCommentFreeBlocks(t *testing.T) {
	p := newPipeline(t)

	block := &Block{
		Number:       15,
		Time:         1700000100,
		Transactions: []Transaction{{Input: []byte{0x01}}},
	}

	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	require.NoError(t, p.processor.ProcessBlock(context.Background(), 8453, block))
	assert.Zero(t, p.repo.insertBatchCalls, "comment-free blocks never reach storage")

	// The skip cache is chain-scoped.
	require.NoError(t, p.processor.ProcessBlock(context.Background(), 1, block))
}

func TestNormalizeTargetURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/Path?Q=1", "https://example.com/Path?Q=1"},
		{"  https://example.com  ", "https://example.com"},
		{"not a uri", "not a uri"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTargetURI(tt.in))
	}
}

package block_processor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() CommentPayload {
	return CommentPayload{
		Author:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		App:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ChannelID:   big.NewInt(42),
		ParentID:    common.Hash{},
		TargetURI:   "https://example.com/post/1",
		Content:     "hello on-chain",
		Metadata:    []MetadataEntry{{Key: common.HexToHash("0x01"), Value: []byte{0xde, 0xad}}},
		CommentType: 0,
		CreatedAt:   1700000000,
		Deadline:    1700003600,
	}
}

func TestSigningHashDeterministic(t *testing.T) {
	p := samplePayload()

	h1, err := SigningHash(8453, p)
	require.NoError(t, err)
	h2, err := SigningHash(8453, p)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, common.Hash{}, h1)
}

func TestSigningHashScopedByChainAndContent(t *testing.T) {
	p := samplePayload()

	base, err := SigningHash(8453, p)
	require.NoError(t, err)

	otherChain, err := SigningHash(1, p)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherChain, "same payload on another chain is another comment")

	edited := p
	edited.Content = "hello on-chain!"
	otherContent, err := SigningHash(8453, edited)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherContent)
}

func TestSigningHashNilChannelID(t *testing.T) {
	p := samplePayload()
	p.ChannelID = nil

	withNil, err := SigningHash(8453, p)
	require.NoError(t, err)

	p.ChannelID = new(big.Int)
	withZero, err := SigningHash(8453, p)
	require.NoError(t, err)
	assert.Equal(t, withZero, withNil, "nil channel id canonicalizes to zero")
}

func TestCommentSuffixRoundTrip(t *testing.T) {
	env := CommentEnvelope{
		Payload:   samplePayload(),
		AppSig:    make([]byte, 65),
		AuthorSig: make([]byte, 65),
	}
	calldata := []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01, 0x02, 0x03}

	input, err := AppendCommentSuffix(calldata, env)
	require.NoError(t, err)

	got, ok := ParseCommentSuffix(input)
	require.True(t, ok)
	assert.Equal(t, env.Payload.Content, got.Payload.Content)
	assert.Equal(t, env.Payload.Author, got.Payload.Author)
	assert.Equal(t, env.Payload.Metadata, got.Payload.Metadata)
	assert.Zero(t, env.Payload.ChannelID.Cmp(got.Payload.ChannelID))
}

func TestParseCommentSuffixRejectsNonComments(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"too short", []byte("ECM")},
		{"plain transfer calldata", []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00, 0x00, 0x00, 0x00}},
		{"magic without envelope", []byte("\x00\x00\x00\x10ECM1")},
		{"magic with garbage envelope", append([]byte("not rlp at all\x00\x00\x00\x0e"), "ECM1"...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseCommentSuffix(tt.input)
			assert.False(t, ok)
		})
	}
}

func TestParseCommentSuffixLengthOverflow(t *testing.T) {
	env := CommentEnvelope{Payload: samplePayload(), AppSig: make([]byte, 65)}
	input, err := AppendCommentSuffix(nil, env)
	require.NoError(t, err)

	// Corrupt the declared length so it claims more bytes than exist.
	input[len(input)-8] = 0xff
	_, ok := ParseCommentSuffix(input)
	assert.False(t, ok)
}

func TestVerifyEnvelope(t *testing.T) {
	appKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	authorKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	p := samplePayload()
	p.App = crypto.PubkeyToAddress(appKey.PublicKey)
	p.Author = crypto.PubkeyToAddress(authorKey.PublicKey)

	hash, err := SigningHash(8453, p)
	require.NoError(t, err)

	appSig, err := crypto.Sign(hash.Bytes(), appKey)
	require.NoError(t, err)
	authorSig, err := crypto.Sign(hash.Bytes(), authorKey)
	require.NoError(t, err)

	relayer := common.HexToAddress("0x9999999999999999999999999999999999999999")

	t.Run("both signatures valid", func(t *testing.T) {
		env := &CommentEnvelope{Payload: p, AppSig: appSig, AuthorSig: authorSig}
		assert.NoError(t, verifyEnvelope(hash, env, relayer))
	})

	t.Run("legacy recovery id accepted", func(t *testing.T) {
		legacy := append([]byte(nil), appSig...)
		legacy[64] += 27
		env := &CommentEnvelope{Payload: p, AppSig: legacy, AuthorSig: authorSig}
		assert.NoError(t, verifyEnvelope(hash, env, relayer))
	})

	t.Run("author signature waived for self-submission", func(t *testing.T) {
		env := &CommentEnvelope{Payload: p, AppSig: appSig}
		assert.NoError(t, verifyEnvelope(hash, env, p.Author))
	})

	t.Run("missing author signature from relayer rejected", func(t *testing.T) {
		env := &CommentEnvelope{Payload: p, AppSig: appSig}
		assert.ErrorIs(t, verifyEnvelope(hash, env, relayer), ErrAuthorSignature)
	})

	t.Run("wrong app signer rejected", func(t *testing.T) {
		env := &CommentEnvelope{Payload: p, AppSig: authorSig, AuthorSig: authorSig}
		assert.ErrorIs(t, verifyEnvelope(hash, env, relayer), ErrAppSignature)
	})

	t.Run("signature over different hash rejected", func(t *testing.T) {
		otherHash, err := SigningHash(1, p)
		require.NoError(t, err)
		otherSig, err := crypto.Sign(otherHash.Bytes(), appKey)
		require.NoError(t, err)
		env := &CommentEnvelope{Payload: p, AppSig: otherSig, AuthorSig: authorSig}
		assert.ErrorIs(t, verifyEnvelope(hash, env, relayer), ErrAppSignature)
	})

	t.Run("truncated signature rejected", func(t *testing.T) {
		env := &CommentEnvelope{Payload: p, AppSig: appSig[:64], AuthorSig: authorSig}
		assert.ErrorIs(t, verifyEnvelope(hash, env, relayer), ErrAppSignature)
	})
}

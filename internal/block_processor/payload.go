package block_processor

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Comment calldata suffix:
//
//	<original calldata> || rlp(envelope) || len(rlp(envelope)) uint32 BE || "ECM1"
//
// Transactions without a well-formed suffix are simply not comments.
const calldataMagic = "ECM1"

const trailerSize = 8 // 4-byte length + 4-byte magic

// signingDomain separates comment signing hashes from any other signed
// payloads a wallet might produce.
var signingDomain = []byte("\x19Onchain Comment v1\n")

// MetadataEntry is one structured metadata key/value pair carried in the
// signed payload.
type MetadataEntry struct {
	Key   common.Hash
	Value []byte
}

// CommentPayload holds the signed fields of a comment. Its canonical hash is
// both the signing hash and the comment identity.
type CommentPayload struct {
	Author      common.Address
	App         common.Address
	ChannelID   *big.Int
	ParentID    common.Hash // zero for root comments
	TargetURI   string
	Content     string
	Metadata    []MetadataEntry
	CommentType uint8
	CreatedAt   uint64 // unix seconds
	Deadline    uint64
}

// CommentEnvelope is the payload plus its two signatures as appended to
// transaction calldata. AuthorSig may be empty when the transaction sender
// is the author.
type CommentEnvelope struct {
	Payload   CommentPayload
	AppSig    []byte
	AuthorSig []byte
}

type signedComment struct {
	ChainID uint64
	Payload CommentPayload
}

// SigningHash computes the canonical, chain-scoped hash of the signed
// fields. It is deterministic: the same fields always produce the same hash,
// which doubles as the comment id.
func SigningHash(chainID uint64, p CommentPayload) (common.Hash, error) {
	if p.ChannelID == nil {
		p.ChannelID = new(big.Int)
	}
	enc, err := rlp.EncodeToBytes(signedComment{ChainID: chainID, Payload: p})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode signed fields: %w", err)
	}
	return common.BytesToHash(crypto.Keccak256(signingDomain, enc)), nil
}

// AppendCommentSuffix appends an encoded comment envelope to calldata. The
// inverse of ParseCommentSuffix; used by clients and tests.
func AppendCommentSuffix(calldata []byte, env CommentEnvelope) ([]byte, error) {
	if env.Payload.ChannelID == nil {
		env.Payload.ChannelID = new(big.Int)
	}
	enc, err := rlp.EncodeToBytes(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode comment envelope: %w", err)
	}

	out := make([]byte, 0, len(calldata)+len(enc)+trailerSize)
	out = append(out, calldata...)
	out = append(out, enc...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(enc)))
	out = append(out, calldataMagic...)
	return out, nil
}

// ParseCommentSuffix extracts a comment envelope from the tail of
// transaction calldata. The second return is false for anything that is not
// a well-formed suffix; that is never an error, most transactions simply are
// not comments.
func ParseCommentSuffix(input []byte) (*CommentEnvelope, bool) {
	if len(input) < trailerSize {
		return nil, false
	}
	if string(input[len(input)-4:]) != calldataMagic {
		return nil, false
	}

	payloadLen := binary.BigEndian.Uint32(input[len(input)-trailerSize : len(input)-4])
	end := len(input) - trailerSize
	if uint64(payloadLen) > uint64(end) {
		return nil, false
	}

	var env CommentEnvelope
	if err := rlp.DecodeBytes(input[end-int(payloadLen):end], &env); err != nil {
		return nil, false
	}
	return &env, true
}

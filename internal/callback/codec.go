// Package callback implements the fixed-layout binary encoding of moderation
// callback actions embedded in chat message inline controls.
//
// Wire layout (all multi-byte fields big-endian):
//
//	offset 0        1 byte   action kind
//	offset 1        id field: 32-byte comment id, or 16-byte report UUID
//	offset 1+idLen  4 bytes  unix timestamp, seconds
//	offset 5+idLen  2 bytes  status revision (zero when not applicable)
//
// The whole record is then XORed against a 32-byte key derived from the
// shared secret. Decoding with the wrong key scrambles every field, so a
// forged or mis-keyed payload fails kind/length/freshness validation instead
// of producing a usable action.
package callback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/crypto"
)

// Action kinds.
const (
	KindApproveComment byte = 1
	KindRejectComment  byte = 2
	KindPendingComment byte = 3
	KindResolveReport  byte = 4
	KindCloseReport    byte = 5
)

// Encoded record sizes and caps.
const (
	commentRecordSize = 1 + common.HashLength + 4 + 2 // 39
	reportRecordSize  = 1 + 16 + 4 + 2                // 23

	// MaxEncodedSize bounds what we accept from the transport at all.
	MaxEncodedSize       = 64
	MaxReportEncodedSize = 48
)

var (
	ErrOversized   = errors.New("callback payload exceeds maximum encoded size")
	ErrMalformed   = errors.New("callback payload has invalid length")
	ErrUnknownKind = errors.New("callback action kind is unknown")
	ErrStale       = errors.New("callback action is too old")
	ErrFromFuture  = errors.New("callback action timestamp is in the future")
)

// Allowed clock skew when checking a decoded timestamp against the wall
// clock.
const maxClockSkew = time.Minute

// Action is one self-contained moderation instruction. Exactly one of
// CommentID / ReportID is meaningful, selected by Kind.
type Action struct {
	Kind      byte
	CommentID common.Hash
	ReportID  uuid.UUID
	IssuedAt  time.Time
	Revision  uint16
}

// IsReportAction reports whether the kind targets a report rather than a
// comment.
func IsReportAction(kind byte) bool {
	return kind == KindResolveReport || kind == KindCloseReport
}

func knownKind(kind byte) bool {
	return kind >= KindApproveComment && kind <= KindCloseReport
}

// Encode serializes the action and obscures it with the key derived from
// secret. Oversized records are rejected before they ever reach a transport.
func Encode(a Action, secret string) ([]byte, error) {
	if !knownKind(a.Kind) {
		return nil, ErrUnknownKind
	}

	var buf []byte
	if IsReportAction(a.Kind) {
		buf = make([]byte, 0, reportRecordSize)
		buf = append(buf, a.Kind)
		buf = append(buf, a.ReportID[:]...)
	} else {
		buf = make([]byte, 0, commentRecordSize)
		buf = append(buf, a.Kind)
		buf = append(buf, a.CommentID[:]...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.IssuedAt.Unix()))
	buf = binary.BigEndian.AppendUint16(buf, a.Revision)

	limit := MaxEncodedSize
	if IsReportAction(a.Kind) {
		limit = MaxReportEncodedSize
	}
	if len(buf) > limit {
		return nil, ErrOversized
	}

	key, err := crypto.DeriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive callback key: %w", err)
	}
	if err := crypto.Obscure(buf, key); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode reverses Encode. It validates size and kind but not freshness; call
// Action.CheckFreshness before trusting the result.
func Decode(data []byte, secret string) (Action, error) {
	if len(data) > MaxEncodedSize {
		return Action{}, ErrOversized
	}
	if len(data) != commentRecordSize && len(data) != reportRecordSize {
		return Action{}, ErrMalformed
	}

	key, err := crypto.DeriveKey(secret)
	if err != nil {
		return Action{}, fmt.Errorf("failed to derive callback key: %w", err)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	if err := crypto.Obscure(buf, key); err != nil {
		return Action{}, err
	}

	a := Action{Kind: buf[0]}
	if !knownKind(a.Kind) {
		return Action{}, ErrUnknownKind
	}

	var idLen int
	if IsReportAction(a.Kind) {
		if len(buf) != reportRecordSize {
			return Action{}, ErrMalformed
		}
		copy(a.ReportID[:], buf[1:1+16])
		idLen = 16
	} else {
		if len(buf) != commentRecordSize {
			return Action{}, ErrMalformed
		}
		copy(a.CommentID[:], buf[1:1+common.HashLength])
		idLen = common.HashLength
	}

	ts := binary.BigEndian.Uint32(buf[1+idLen : 5+idLen])
	a.IssuedAt = time.Unix(int64(ts), 0).UTC()
	a.Revision = binary.BigEndian.Uint16(buf[5+idLen : 7+idLen])

	return a, nil
}

// CheckFreshness rejects actions issued too far in the past or the future.
func (a Action) CheckFreshness(now time.Time, maxAge time.Duration) error {
	if a.IssuedAt.After(now.Add(maxClockSkew)) {
		return ErrFromFuture
	}
	if now.Sub(a.IssuedAt) > maxAge {
		return ErrStale
	}
	return nil
}

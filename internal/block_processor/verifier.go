package block_processor

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")
	ErrAppSignature           = errors.New("application signer signature does not verify")
	ErrAuthorSignature        = errors.New("author signature does not verify")
)

// recoverSigner recovers the address that produced sig over hash. Accepts
// both 0/1 and 27/28 recovery ids.
func recoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// verifyEnvelope checks both signatures of a decoded envelope against the
// canonical signing hash.
//
// The application signer's signature is always required. The author's
// signature is required only when the transaction sender is not the claimed
// author; a sender submitting their own comment has already authorized it by
// signing the transaction itself.
func verifyEnvelope(hash common.Hash, env *CommentEnvelope, txSender common.Address) error {
	appSigner, err := recoverSigner(hash, env.AppSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAppSignature, err)
	}
	if appSigner != env.Payload.App {
		return ErrAppSignature
	}

	if txSender == env.Payload.Author {
		return nil
	}

	author, err := recoverSigner(hash, env.AuthorSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorSignature, err)
	}
	if author != env.Payload.Author {
		return ErrAuthorSignature
	}
	return nil
}

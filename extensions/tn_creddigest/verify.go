package tn_creddigest

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SigningDigest hashes a canonical message the way the attester signed it.
//
// Without EIP-191 the digest is keccak256(message). With EIP-191 the 32-byte
// digest is hashed a second time under the personal-message prefix:
// keccak256("\x19Ethereum Signed Message:\n32" || keccak256(message)).
func SigningDigest(message []byte, useEIP191 bool) common.Hash {
	digest := crypto.Keccak256(message)
	if useEIP191 {
		digest = accounts.TextHash(digest)
	}
	return common.BytesToHash(digest)
}

// RecoverSigner recovers the address that produced signature over digest.
//
// The signature must be exactly 65 bytes (r || s || v); any other length returns
// ErrInvalidSignatureLength. The recovery id must be in compact {0,1} or EVM
// {27,28} form, as accepted by ecrecover. Every other failure wraps
// ErrRecoveryFailed.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errors.Wrapf(ErrInvalidSignatureLength, "got %d bytes", len(signature))
	}

	normSignature := append([]byte(nil), signature...)
	recoveryID, err := toCompactRecoveryID(normSignature[64])
	if err != nil {
		return common.Address{}, errors.Wrap(ErrRecoveryFailed, err.Error())
	}
	normSignature[64] = recoveryID

	pub, err := crypto.SigToPub(digest[:], normSignature)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrRecoveryFailed, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerificationResult is the outcome of checking a submission's signature.
type VerificationResult struct {
	Digest common.Hash
	// Signer is the zero address when recovery failed.
	Signer common.Address
	// RecoveryErr is set when no signer could be recovered.
	RecoveryErr error
	Matched     bool
}

// VerifySubmission rebuilds the canonical message of sub, hashes it under the
// requested convention and compares the recovered signer with the claimed
// attester byte for byte. Only a wrong signature length is returned as an error;
// a recovery failure is reported as an unmatched result.
func VerifySubmission(sub Submission) (VerificationResult, error) {
	digest := SigningDigest(sub.CanonicalMessage(), sub.UseEIP191)
	result := VerificationResult{Digest: digest}

	signer, err := RecoverSigner(digest, sub.Signature)
	switch {
	case errors.Is(err, ErrInvalidSignatureLength):
		return result, err
	case err != nil:
		result.RecoveryErr = err
		return result, nil
	}

	result.Signer = signer
	result.Matched = signer == sub.ClaimedAttester
	return result, nil
}

func toCompactRecoveryID(v byte) (byte, error) {
	switch {
	case v <= 1:
		return v, nil
	case v == 27 || v == 28:
		return v - 27, nil
	default:
		return 0, errors.Errorf("invalid recovery id %d", v)
	}
}

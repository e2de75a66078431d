package tn_creddigest

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AttesterSigner signs canonical credential messages with an attester's secp256k1
// key. It is the off-chain counterpart of the registry's verifier and produces
// EVM-compatible signatures.
type AttesterSigner struct {
	privateKey *ecdsa.PrivateKey
	mu         sync.RWMutex
}

// NewAttesterSigner wraps an existing secp256k1 private key.
func NewAttesterSigner(privateKey *ecdsa.PrivateKey) (*AttesterSigner, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	return &AttesterSigner{privateKey: privateKey}, nil
}

// NewAttesterSignerFromHex parses a hex private key, with or without 0x prefix.
func NewAttesterSignerFromHex(hexKey string) (*AttesterSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewAttesterSigner(privateKey)
}

// GenerateAttesterSigner creates a signer with a fresh random key.
func GenerateAttesterSigner() (*AttesterSigner, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return NewAttesterSigner(privateKey)
}

// SignDigest signs the provided 32-byte digest (already hashed) and returns a
// 65-byte signature with V in {27,28}.
func (s *AttesterSigner) SignDigest(digest []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil, fmt.Errorf("private key not initialized")
	}

	if len(digest) != crypto.DigestLength {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", crypto.DigestLength, len(digest))
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	v &= 1
	signature[64] = v + 27
	return signature, nil
}

// SignMessage hashes a canonical message with SigningDigest and signs the result.
func (s *AttesterSigner) SignMessage(message []byte, useEIP191 bool) ([]byte, error) {
	if len(message) != CanonicalMessageLength {
		return nil, fmt.Errorf("canonical message must be %d bytes, got %d", CanonicalMessageLength, len(message))
	}
	digest := SigningDigest(message, useEIP191)
	return s.SignDigest(digest[:])
}

// SignSubmission fills in Signature and ClaimedAttester for sub.
func (s *AttesterSigner) SignSubmission(sub Submission) (Submission, error) {
	signature, err := s.SignMessage(sub.CanonicalMessage(), sub.UseEIP191)
	if err != nil {
		return sub, err
	}
	sub.Signature = signature
	sub.ClaimedAttester = s.Address()
	return sub, nil
}

// Address returns the attester address derived from the public key.
func (s *AttesterSigner) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// PrivateKeyHex exports the key as 0x-prefixed hex.
func (s *AttesterSigner) PrivateKeyHex() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))
}

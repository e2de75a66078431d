package tn_creddigest

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// RegistryKey identifies a submission for dedup purposes. It is derived from the
// context id, timestamp, content digest and version only, so two submissions that
// differ in status flag, hashing convention, signature or claimed attester share
// the same key.
type RegistryKey [32]byte

// Hex returns the 0x-prefixed hex encoding of the key.
func (k RegistryKey) Hex() string {
	return hexutil.Encode(k[:])
}

func (k RegistryKey) String() string {
	return k.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (k RegistryKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RegistryKey) UnmarshalText(text []byte) error {
	parsed, err := ParseRegistryKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseRegistryKey decodes a 0x-prefixed 32-byte hex string.
func ParseRegistryKey(s string) (RegistryKey, error) {
	var key RegistryKey
	raw, err := decodeFixedHex(s, len(key))
	if err != nil {
		return key, errors.Wrap(err, "parse registry key")
	}
	copy(key[:], raw)
	return key, nil
}

// Submission is the caller-supplied input of a single verification.
type Submission struct {
	ContextID       common.Hash
	Timestamp       uint64
	StatusFlag      byte
	ContentDigest   common.Hash
	Version         uint16
	UseEIP191       bool
	Signature       []byte
	ClaimedAttester common.Address
}

// Validate performs the fatal checks that must pass before any state is touched.
func (s Submission) Validate() error {
	if err := s.validateKeyFields(); err != nil {
		return err
	}
	return s.validateSignatureLength()
}

// validateKeyFields checks the fields the registry key is derived from.
func (s Submission) validateKeyFields() error {
	if !IsSupportedVersion(s.Version) {
		return errors.Wrapf(ErrInvalidVersion, "version 0x%04x", s.Version)
	}
	if s.Timestamp > MaxTimestamp {
		return errors.Wrapf(ErrTimestampOverflow, "timestamp %d", s.Timestamp)
	}
	return nil
}

func (s Submission) validateSignatureLength() error {
	if len(s.Signature) != SignatureLength {
		return errors.Wrapf(ErrInvalidSignatureLength, "got %d bytes", len(s.Signature))
	}
	return nil
}

// Key derives the registry key of the submission.
func (s Submission) Key() RegistryKey {
	return DeriveRegistryKey(s.ContextID, s.Timestamp, s.ContentDigest, s.Version)
}

// CanonicalMessage returns the bytes the attester is expected to have signed.
func (s Submission) CanonicalMessage() []byte {
	return CanonicalMessage(s.ContextID, s.Timestamp, s.StatusFlag, s.ContentDigest, s.Version)
}

// CanonicalMessage concatenates the signed fields at their natural widths.
//
// Layout:
//
//	32 bytes  context id
//	 6 bytes  timestamp (big-endian)
//	 1 byte   status flag
//	32 bytes  content digest
//	 2 bytes  version (big-endian)
//
// Off-chain signers must reproduce this layout bit for bit. Timestamps wider than
// 48 bits are truncated here; Submission.Validate rejects them beforehand.
func CanonicalMessage(contextID common.Hash, timestamp uint64, statusFlag byte, contentDigest common.Hash, version uint16) []byte {
	msg := make([]byte, 0, CanonicalMessageLength)
	msg = append(msg, contextID[:]...)
	msg = appendUint48(msg, timestamp)
	msg = append(msg, statusFlag)
	msg = append(msg, contentDigest[:]...)
	msg = binary.BigEndian.AppendUint16(msg, version)
	return msg
}

// DeriveRegistryKey hashes the identifying fields:
// keccak256(contextId || timestamp[6] || contentDigest || version[2]).
func DeriveRegistryKey(contextID common.Hash, timestamp uint64, contentDigest common.Hash, version uint16) RegistryKey {
	buf := make([]byte, 0, ContextIDLength+TimestampLength+ContentDigestLength+VersionLength)
	buf = append(buf, contextID[:]...)
	buf = appendUint48(buf, timestamp)
	buf = append(buf, contentDigest[:]...)
	buf = binary.BigEndian.AppendUint16(buf, version)
	return RegistryKey(crypto.Keccak256Hash(buf))
}

// CanonicalFields is the decoded form of a canonical message.
type CanonicalFields struct {
	ContextID     common.Hash
	Timestamp     uint64
	StatusFlag    byte
	ContentDigest common.Hash
	Version       uint16
}

// Key derives the registry key of the decoded message.
func (f *CanonicalFields) Key() RegistryKey {
	return DeriveRegistryKey(f.ContextID, f.Timestamp, f.ContentDigest, f.Version)
}

// ParseCanonicalMessage decodes a canonical message. The version is decoded as-is
// and not checked against the supported set.
func ParseCanonicalMessage(data []byte) (*CanonicalFields, error) {
	if len(data) != CanonicalMessageLength {
		return nil, fmt.Errorf("canonical message must be %d bytes, got %d", CanonicalMessageLength, len(data))
	}

	cursor := 0
	fields := &CanonicalFields{}

	fields.ContextID = common.BytesToHash(data[cursor : cursor+ContextIDLength])
	cursor += ContextIDLength

	fields.Timestamp = readUint48(data[cursor : cursor+TimestampLength])
	cursor += TimestampLength

	fields.StatusFlag = data[cursor]
	cursor += StatusFlagLength

	fields.ContentDigest = common.BytesToHash(data[cursor : cursor+ContentDigestLength])
	cursor += ContentDigestLength

	fields.Version = binary.BigEndian.Uint16(data[cursor : cursor+VersionLength])
	return fields, nil
}

func appendUint48(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[8-TimestampLength:]...)
}

func readUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[8-TimestampLength:], b)
	return binary.BigEndian.Uint64(buf[:])
}

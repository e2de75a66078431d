package tn_creddigest

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// SubmissionInput is the wire form of a submission: every field is 0x-prefixed
// hex at its natural width, e.g. timestamp "0x0186815ed1ea", status "0x00",
// version "0x0000".
type SubmissionInput struct {
	ContextID       string `json:"context_id"`
	Timestamp       string `json:"timestamp"`
	StatusFlag      string `json:"status_flag"`
	ContentDigest   string `json:"content_digest"`
	Version         string `json:"version"`
	UseEIP191       bool   `json:"use_eip191"`
	Signature       string `json:"signature"`
	ClaimedAttester string `json:"claimed_attester"`
}

// Parse decodes the wire form. Width mismatches wrap ErrInvalidInput, except the
// signature whose length is checked by Submission.Validate so it surfaces as
// ErrInvalidSignatureLength. Version values are decoded but not range checked.
func (in SubmissionInput) Parse() (Submission, error) {
	var sub Submission

	contextID, err := decodeFixedHex(in.ContextID, ContextIDLength)
	if err != nil {
		return sub, errors.Wrap(err, "context_id")
	}
	sub.ContextID = common.BytesToHash(contextID)

	timestamp, err := decodeFixedHex(in.Timestamp, TimestampLength)
	if err != nil {
		return sub, errors.Wrap(err, "timestamp")
	}
	sub.Timestamp = readUint48(timestamp)

	status, err := decodeFixedHex(in.StatusFlag, StatusFlagLength)
	if err != nil {
		return sub, errors.Wrap(err, "status_flag")
	}
	sub.StatusFlag = status[0]

	digest, err := decodeFixedHex(in.ContentDigest, ContentDigestLength)
	if err != nil {
		return sub, errors.Wrap(err, "content_digest")
	}
	sub.ContentDigest = common.BytesToHash(digest)

	version, err := decodeFixedHex(in.Version, VersionLength)
	if err != nil {
		return sub, errors.Wrap(err, "version")
	}
	sub.Version = binary.BigEndian.Uint16(version)

	sub.Signature, err = hexutil.Decode(strings.TrimSpace(in.Signature))
	if err != nil {
		return sub, errors.Wrapf(ErrInvalidInput, "signature: %v", err)
	}

	sub.ClaimedAttester, err = ParseAddress(in.ClaimedAttester)
	if err != nil {
		return sub, errors.Wrap(err, "claimed_attester")
	}

	sub.UseEIP191 = in.UseEIP191
	return sub, nil
}

// NewSubmissionInput renders sub in its wire form.
func NewSubmissionInput(sub Submission) SubmissionInput {
	return SubmissionInput{
		ContextID:       sub.ContextID.Hex(),
		Timestamp:       hexutil.Encode(appendUint48(nil, sub.Timestamp)),
		StatusFlag:      hexutil.Encode([]byte{sub.StatusFlag}),
		ContentDigest:   sub.ContentDigest.Hex(),
		Version:         hexutil.Encode(binary.BigEndian.AppendUint16(nil, sub.Version)),
		UseEIP191:       sub.UseEIP191,
		Signature:       hexutil.Encode(sub.Signature),
		ClaimedAttester: sub.ClaimedAttester.Hex(),
	}
}

// ParseAddress accepts a 0x-prefixed 20-byte hex address in any letter case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, errors.Wrapf(ErrInvalidInput, "address %q must start with 0x", s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(ErrInvalidInput, "malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}

func decodeFixedHex(s string, width int) ([]byte, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "%q: %v", s, err)
	}
	if len(raw) != width {
		return nil, errors.Wrapf(ErrInvalidInput, "expected %d bytes, got %d", width, len(raw))
	}
	return raw, nil
}

package tn_creddigest

import "github.com/pkg/errors"

// Fatal errors abort a submission without any state change and without a
// notification. Callers match them with errors.Is.
var (
	ErrInvalidVersion         = errors.New("the vcVersion is invalid")
	ErrAlreadySubmitted       = errors.New("this VC has been uploaded before")
	ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")
	ErrTimestampOverflow      = errors.New("timestamp does not fit in 6 bytes")
	ErrInvalidInput           = errors.New("invalid submission input")
)

// ErrRecoveryFailed is returned by RecoverSigner when no public key can be
// recovered. The registry treats it as a signer mismatch, not a fatal error.
var ErrRecoveryFailed = errors.New("signer recovery failed")

// ErrKeyNotPending is returned by stores when Settle targets a key that was never
// reserved or has already reached a terminal state.
var ErrKeyNotPending = errors.New("registry key is not pending")

// fatalReason maps an error returned by VerifyVC onto a low-cardinality metric label.
func fatalReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrInvalidSignatureLength):
		return "invalid_signature_length"
	case errors.Is(err, ErrTimestampOverflow), errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "store_error"
	}
}

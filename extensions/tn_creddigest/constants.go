package tn_creddigest

const (
	// ExtensionName names loggers, tracers and meters created by this package.
	ExtensionName = "tn_creddigest"

	ContextIDLength     = 32
	TimestampLength     = 6
	StatusFlagLength    = 1
	ContentDigestLength = 32
	VersionLength       = 2

	// CanonicalMessageLength is the exact size of the signed payload.
	CanonicalMessageLength = ContextIDLength + TimestampLength + StatusFlagLength + ContentDigestLength + VersionLength

	// SignatureLength covers r (32) || s (32) || v (1).
	SignatureLength = 65

	// MaxTimestamp is the largest value representable in the 6-byte timestamp field.
	MaxTimestamp uint64 = 1<<(8*TimestampLength) - 1
)

// Supported credential versions. Anything else is rejected before the key is consumed.
const (
	VersionV0 uint16 = 0x0000
	VersionV1 uint16 = 0x0001
)

// IsSupportedVersion reports whether v is an accepted version tag.
func IsSupportedVersion(v uint16) bool {
	return v == VersionV0 || v == VersionV1
}

// Package tn_creddigest implements the credential digest registry.
//
// A holder submits a verifiable credential digest together with the attester's
// signature. The registry:
// 1. Rejects unknown versions and malformed inputs before touching state
// 2. Derives the registry key and consumes it in the seen set (first sight only)
// 3. Rebuilds the canonical 73-byte message and recovers the signer, optionally
// under the EIP-191 personal-message prefix
// 4. Records {attester, holder} when the signer matches the claimed attester
//
// A key is consumed before the signature is checked, so a submission that fails
// verification can never be retried under the same (context, timestamp, digest,
// version) tuple.
//
// Key components:
// - Registry: orchestrates one submission end to end, serialised by a mutex
// - Store: seen set plus attester/holder tables (MemoryStore, SQLiteStore)
// - AttesterSigner: off-chain counterpart producing EVM-compatible signatures
// - Notifier: receives VCVerifySuccess / VCVerifyFail notifications
package tn_creddigest

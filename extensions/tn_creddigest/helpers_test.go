package tn_creddigest

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testContextID = common.HexToHash("0xc08734bbd035fe0880ba6e469e40b160601a2389d0284f6255a5f0b395d2336c")
	testDigest    = common.HexToHash("0xb159990a86e5a2b97d9a0f6b1f95b2678b8ae396f2ec73ae3f6d22d8dd1e1668")
	testCaller    = common.HexToAddress("0x11f8b77F34FCF14B7095BF5228Ac0606324E82D1")
)

const testTimestamp uint64 = 0x0186815ed1ea

func newTestSigner(t *testing.T) *AttesterSigner {
	t.Helper()
	signer, err := GenerateAttesterSigner()
	require.NoError(t, err)
	return signer
}

// signedSubmission returns a submission signed by signer over its own fields.
func signedSubmission(t *testing.T, signer *AttesterSigner, status byte, version uint16, useEIP191 bool) Submission {
	t.Helper()
	sub, err := signer.SignSubmission(Submission{
		ContextID:     testContextID,
		Timestamp:     testTimestamp,
		StatusFlag:    status,
		ContentDigest: testDigest,
		Version:       version,
		UseEIP191:     useEIP191,
	})
	require.NoError(t, err)
	return sub
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.events...)
}

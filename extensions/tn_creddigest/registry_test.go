package tn_creddigest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestRegistry(t *testing.T, store Store) (*Registry, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	reg, err := NewRegistry(store, WithNotifier(notifier))
	require.NoError(t, err)
	return reg, notifier
}

func TestNewRegistry_NilStore(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.Error(t, err)
	require.Nil(t, reg)
}

func TestRegistryScenarios(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			for _, useEIP191 := range []bool{true, false} {
				t.Run(map[bool]string{true: "EIP191", false: "Raw"}[useEIP191], func(t *testing.T) {
					runScenarios(t, factory, useEIP191)
				})
			}
		})
	}
}

func runScenarios(t *testing.T, newStore storeFactory, useEIP191 bool) {
	ctx := context.Background()

	t.Run("A_ValidSubmissionIsRegistered", func(t *testing.T) {
		reg, notifier := newTestRegistry(t, newStore(t))
		signer := newTestSigner(t)
		sub := signedSubmission(t, signer, 0x00, VersionV0, useEIP191)

		n, err := reg.VerifyVC(ctx, sub, testCaller)
		require.NoError(t, err)
		require.NotNil(t, n)
		require.Equal(t, VCVerifySuccess, n.Kind)
		require.True(t, n.Succeeded())
		require.Equal(t, sub.Key(), n.Key)
		require.Equal(t, signer.Address(), n.Attester)

		attester, err := reg.AttesterOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, signer.Address(), attester)

		holder, err := reg.HolderOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, testCaller, holder)

		state, err := reg.StateOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, KeyStateVerified, state)

		events := notifier.all()
		require.Len(t, events, 1)
		require.Equal(t, *n, events[0])
	})

	t.Run("B_FlippedStatusIsRejected", func(t *testing.T) {
		reg, notifier := newTestRegistry(t, newStore(t))
		signer := newTestSigner(t)
		sub := signedSubmission(t, signer, 0x00, VersionV0, useEIP191)
		sub.StatusFlag = 0x01

		n, err := reg.VerifyVC(ctx, sub, testCaller)
		require.NoError(t, err)
		require.Equal(t, VCVerifyFail, n.Kind)
		require.False(t, n.Succeeded())
		require.Equal(t, sub.Key(), n.Key)
		require.Equal(t, common.Address{}, n.Attester)

		attester, err := reg.AttesterOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, common.Address{}, attester)

		holder, err := reg.HolderOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, common.Address{}, holder)

		state, err := reg.StateOf(ctx, sub.Key())
		require.NoError(t, err)
		require.Equal(t, KeyStateRejected, state)
		require.Len(t, notifier.all(), 1)
	})

	t.Run("C_ResubmissionIsFatal", func(t *testing.T) {
		reg, notifier := newTestRegistry(t, newStore(t))
		signer := newTestSigner(t)
		sub := signedSubmission(t, signer, 0x00, VersionV0, useEIP191)
		sub.StatusFlag = 0x01

		_, err := reg.VerifyVC(ctx, sub, testCaller)
		require.NoError(t, err)

		n, err := reg.VerifyVC(ctx, sub, testCaller)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrAlreadySubmitted), "got %v", err)
		require.Contains(t, err.Error(), "has been uploaded before")
		require.Nil(t, n)
		require.Len(t, notifier.all(), 1, "fatal rejection must not notify")
	})

	t.Run("D_InvalidVersionDoesNotConsumeKey", func(t *testing.T) {
		reg, notifier := newTestRegistry(t, newStore(t))
		signer := newTestSigner(t)

		bad := signedSubmission(t, signer, 0x00, 0x0002, useEIP191)
		n, err := reg.VerifyVC(ctx, bad, testCaller)
		require.True(t, errors.Is(err, ErrInvalidVersion), "got %v", err)
		require.Contains(t, err.Error(), "vcVersion is invalid")
		require.Nil(t, n)
		require.Empty(t, notifier.all())

		state, err := reg.StateOf(ctx, bad.Key())
		require.NoError(t, err)
		require.Equal(t, KeyStateUnseen, state)

		entries, err := reg.Records(ctx)
		require.NoError(t, err)
		require.Empty(t, entries)

		good := signedSubmission(t, signer, 0x00, VersionV0, useEIP191)
		n, err = reg.VerifyVC(ctx, good, testCaller)
		require.NoError(t, err)
		require.Equal(t, VCVerifySuccess, n.Kind)
	})
}

func TestRegistry_IdempotentRejection(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	other := newTestSigner(t)

	for _, firstValid := range []bool{true, false} {
		reg, notifier := newTestRegistry(t, NewMemoryStore())

		first := signedSubmission(t, signer, 0x00, VersionV1, false)
		if !firstValid {
			first.ClaimedAttester = other.Address()
		}
		_, err := reg.VerifyVC(ctx, first, testCaller)
		require.NoError(t, err)

		variants := []Submission{
			signedSubmission(t, signer, 0x00, VersionV1, false),
			signedSubmission(t, signer, 0x01, VersionV1, false),
			signedSubmission(t, signer, 0x00, VersionV1, true),
			signedSubmission(t, other, 0x00, VersionV1, true),
			withSignature(signedSubmission(t, signer, 0x00, VersionV1, false), 64),
			withSignature(signedSubmission(t, signer, 0x00, VersionV1, false), 0),
			withSignature(signedSubmission(t, signer, 0x00, VersionV1, false), 66),
		}
		for i, v := range variants {
			require.Equal(t, first.Key(), v.Key())
			n, err := reg.VerifyVC(ctx, v, common.HexToAddress("0x0000000000000000000000000000000000000abc"))
			assert.True(t, errors.Is(err, ErrAlreadySubmitted), "variant %d: %v", i, err)
			assert.Nil(t, n)
		}

		require.Len(t, notifier.all(), 1)

		entries, err := reg.Records(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		if firstValid {
			require.Equal(t, KeyStateVerified, entries[0].State)
			require.Equal(t, testCaller, entries[0].Record.Holder)
		} else {
			require.Equal(t, KeyStateRejected, entries[0].State)
			require.Equal(t, Record{}, entries[0].Record)
		}
	}
}

// withSignature resizes the signature of sub to n bytes.
func withSignature(sub Submission, n int) Submission {
	sig := make([]byte, n)
	copy(sig, sub.Signature)
	sub.Signature = sig
	return sub
}

func TestRegistry_SeenKeyReportedBeforeSignatureLength(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reg, notifier := newTestRegistry(t, factory(t))
			signer := newTestSigner(t)
			sub := signedSubmission(t, signer, 0x00, VersionV0, true)

			short := withSignature(sub, 64)
			_, err := reg.VerifyVC(ctx, short, testCaller)
			require.True(t, errors.Is(err, ErrInvalidSignatureLength), "got %v", err)

			state, err := reg.StateOf(ctx, sub.Key())
			require.NoError(t, err)
			require.Equal(t, KeyStateUnseen, state, "a wrong length must not consume the key")

			n, err := reg.VerifyVC(ctx, sub, testCaller)
			require.NoError(t, err)
			require.Equal(t, VCVerifySuccess, n.Kind)

			_, err = reg.VerifyVC(ctx, short, testCaller)
			require.True(t, errors.Is(err, ErrAlreadySubmitted), "got %v", err)
			require.False(t, errors.Is(err, ErrInvalidSignatureLength))
			require.Len(t, notifier.all(), 1)
		})
	}
}

func TestRegistry_NonStandardRecoveryIDIsRejected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, NewMemoryStore())
	signer := newTestSigner(t)

	sub := signedSubmission(t, signer, 0x00, VersionV0, false)
	sub.Signature[64] += 4

	n, err := reg.VerifyVC(ctx, sub, testCaller)
	require.NoError(t, err)
	require.Equal(t, VCVerifyFail, n.Kind)

	state, err := reg.StateOf(ctx, sub.Key())
	require.NoError(t, err)
	require.Equal(t, KeyStateRejected, state)
}

func TestRegistry_LookupDuringSubmissions(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, NewMemoryStore())
	signer := newTestSigner(t)

	subs := make([]Submission, 8)
	for i := range subs {
		subs[i] = signedSubmission(t, signer, 0x00, VersionV0, false)
		subs[i].Timestamp = testTimestamp + uint64(i)
		var err error
		subs[i], err = signer.SignSubmission(subs[i])
		require.NoError(t, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			_, err := reg.VerifyVC(gctx, sub, testCaller)
			return err
		})
		g.Go(func() error {
			for i := 0; i < 20; i++ {
				entry, err := reg.Lookup(gctx, sub.Key())
				if err != nil {
					return err
				}
				if entry.State != KeyStateVerified && entry.Record != (Record{}) {
					return errors.Errorf("state %s observed with record %+v", entry.State, entry.Record)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestRegistry_ConsumeBeforeVerify(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, NewMemoryStore())
	signer := newTestSigner(t)

	// Typo in the claimed attester: the submission is rejected and its key burned.
	typo := signedSubmission(t, signer, 0x00, VersionV0, true)
	typo.ClaimedAttester = common.HexToAddress("0x000000000000000000000000000000000000dead")
	n, err := reg.VerifyVC(ctx, typo, testCaller)
	require.NoError(t, err)
	require.Equal(t, VCVerifyFail, n.Kind)

	// The corrected submission shares the key and can never be registered.
	corrected := signedSubmission(t, signer, 0x00, VersionV0, true)
	_, err = reg.VerifyVC(ctx, corrected, testCaller)
	require.True(t, errors.Is(err, ErrAlreadySubmitted))

	attester, err := reg.AttesterOf(ctx, corrected.Key())
	require.NoError(t, err)
	require.Equal(t, common.Address{}, attester)
}

func TestRegistry_SignatureSchemeCorrectness(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)

	for _, signedWithEIP191 := range []bool{false, true} {
		for _, submittedWithEIP191 := range []bool{false, true} {
			reg, _ := newTestRegistry(t, NewMemoryStore())

			sub := signedSubmission(t, signer, 0x00, VersionV0, signedWithEIP191)
			sub.UseEIP191 = submittedWithEIP191

			n, err := reg.VerifyVC(ctx, sub, testCaller)
			require.NoError(t, err)
			if signedWithEIP191 == submittedWithEIP191 {
				assert.Equal(t, VCVerifySuccess, n.Kind)
			} else {
				assert.Equal(t, VCVerifyFail, n.Kind)
			}
		}
	}
}

func TestRegistry_Determinism(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)
	sub := signedSubmission(t, signer, 0x00, VersionV1, true)

	for i := 0; i < 3; i++ {
		reg, _ := newTestRegistry(t, NewMemoryStore())
		n, err := reg.VerifyVC(ctx, sub, testCaller)
		require.NoError(t, err)
		require.Equal(t, VCVerifySuccess, n.Kind)
		require.Equal(t, sub.Key(), n.Key)
	}
}

func TestRegistry_FatalInputsLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t)

	tests := []struct {
		name   string
		mutate func(*Submission)
		target error
	}{
		{"short signature", func(s *Submission) { s.Signature = s.Signature[:64] }, ErrInvalidSignatureLength},
		{"empty signature", func(s *Submission) { s.Signature = nil }, ErrInvalidSignatureLength},
		{"timestamp overflow", func(s *Submission) { s.Timestamp = MaxTimestamp + 1 }, ErrTimestampOverflow},
		{"version 0xffff", func(s *Submission) { s.Version = 0xFFFF }, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, notifier := newTestRegistry(t, NewMemoryStore())
			sub := signedSubmission(t, signer, 0x00, VersionV0, false)
			tt.mutate(&sub)

			n, err := reg.VerifyVC(ctx, sub, testCaller)
			require.True(t, errors.Is(err, tt.target), "got %v", err)
			require.Nil(t, n)
			require.Empty(t, notifier.all())

			entries, err := reg.Records(ctx)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestRegistry_ZeroValueDefaults(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, NewMemoryStore())
	key := DeriveRegistryKey(testContextID, 42, testDigest, VersionV0)

	attester, err := reg.AttesterOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, attester)

	holder, err := reg.HolderOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, holder)

	entry, err := reg.Lookup(ctx, key)
	require.NoError(t, err)
	require.Equal(t, KeyStateUnseen, entry.State)
	require.Equal(t, Record{}, entry.Record)
}

func TestRegistry_ConcurrentSubmissionsForSameKey(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reg, notifier := newTestRegistry(t, factory(t))
			signer := newTestSigner(t)
			sub := signedSubmission(t, signer, 0x00, VersionV0, true)

			var succeeded, duplicates atomic.Int32
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < 16; i++ {
				g.Go(func() error {
					n, err := reg.VerifyVC(gctx, sub, testCaller)
					switch {
					case errors.Is(err, ErrAlreadySubmitted):
						duplicates.Add(1)
						return nil
					case err != nil:
						return err
					}
					if n.Succeeded() {
						succeeded.Add(1)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			require.Equal(t, int32(1), succeeded.Load())
			require.Equal(t, int32(15), duplicates.Load())
			require.Len(t, notifier.all(), 1)
		})
	}
}

func TestRegistry_SharedSQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/shared.db"

	first, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	regA, _ := newTestRegistry(t, first)
	regB, _ := newTestRegistry(t, second)
	signer := newTestSigner(t)
	sub := signedSubmission(t, signer, 0x00, VersionV0, false)

	n, err := regA.VerifyVC(ctx, sub, testCaller)
	require.NoError(t, err)
	require.Equal(t, VCVerifySuccess, n.Kind)

	_, err = regB.VerifyVC(ctx, sub, testCaller)
	require.True(t, errors.Is(err, ErrAlreadySubmitted), "got %v", err)

	holder, err := regB.HolderOf(ctx, sub.Key())
	require.NoError(t, err)
	require.Equal(t, testCaller, holder)
}

func TestRegistry_NotificationMetadata(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	reg, err := NewRegistry(NewMemoryStore(), WithNotifier(notifier), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	signer := newTestSigner(t)
	first, err := reg.VerifyVC(ctx, signedSubmission(t, signer, 0x00, VersionV0, false), testCaller)
	require.NoError(t, err)
	second, err := reg.VerifyVC(ctx, signedSubmission(t, signer, 0x00, VersionV1, false), testCaller)
	require.NoError(t, err)

	require.Equal(t, fixed, first.EmittedAt)
	require.NotEqual(t, first.ID, second.ID)
}

type countingMetrics struct {
	mu          sync.Mutex
	submissions map[string]int
	fatals      map[string]int
	durations   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{submissions: map[string]int{}, fatals: map[string]int{}}
}

func (c *countingMetrics) RecordSubmission(_ context.Context, outcome string, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions[outcome]++
}

func (c *countingMetrics) RecordFatal(_ context.Context, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fatals[reason]++
}

func (c *countingMetrics) RecordVerifyDuration(context.Context, time.Duration, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations++
}

func TestRegistry_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	recorder := newCountingMetrics()
	reg, err := NewRegistry(NewMemoryStore(), WithMetrics(recorder))
	require.NoError(t, err)

	signer := newTestSigner(t)
	_, err = reg.VerifyVC(ctx, signedSubmission(t, signer, 0x00, VersionV0, false), testCaller)
	require.NoError(t, err)

	mismatched := signedSubmission(t, signer, 0x00, VersionV1, false)
	mismatched.StatusFlag = 0x01
	_, err = reg.VerifyVC(ctx, mismatched, testCaller)
	require.NoError(t, err)

	_, err = reg.VerifyVC(ctx, mismatched, testCaller)
	require.Error(t, err)
	_, err = reg.VerifyVC(ctx, signedSubmission(t, signer, 0x00, 0x0009, false), testCaller)
	require.Error(t, err)

	assert.Equal(t, map[string]int{"verified": 1, "rejected": 1}, recorder.submissions)
	assert.Equal(t, map[string]int{"already_submitted": 1, "invalid_version": 1}, recorder.fatals)
	assert.Equal(t, 2, recorder.durations)
}

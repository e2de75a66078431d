package tn_creddigest

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest/internal/tracing"
	"github.com/trufnetwork/creddigest/extensions/tn_creddigest/metrics"
)

// Registry verifies credential digest submissions and records first-sight
// attestations in a Store. VerifyVC calls are serialised: each submission runs
// to completion before the next one starts.
type Registry struct {
	mu sync.Mutex

	store    Store
	notifier Notifier
	metrics  metrics.MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the sink that receives every notification.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op.
func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the registry logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.Named(ExtensionName)
		}
	}
}

// WithClock overrides the notification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry store cannot be nil")
	}

	r := &Registry{
		store:    store,
		notifier: NotifierFunc(func(context.Context, Notification) {}),
		metrics:  metrics.NewNoOpMetrics(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// VerifyVC processes one submission on behalf of caller, who becomes the holder
// of record on success.
//
// Fatal errors return a nil notification and leave the state untouched. They are
// checked in this order: invalid version, oversized timestamp, already
// submitted, wrong signature length, store failure before the key is reserved.
// Otherwise the key is consumed before the signature is checked and exactly one
// notification is returned:
// VCVerifySuccess when the recovered signer equals the claimed attester,
// VCVerifyFail when it does not or when no signer can be recovered.
func (r *Registry) VerifyVC(ctx context.Context, sub Submission, caller common.Address) (n *Notification, err error) {
	start := time.Now()
	key := sub.Key()

	ctx, endSpan := tracing.TraceOp(ctx, tracing.OpVerifyVC,
		attribute.String("registry_key", key.Hex()),
		attribute.Bool("eip191", sub.UseEIP191))
	defer func() { endSpan(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := sub.validateKeyFields(); err != nil {
		r.fatal(ctx, key, err)
		return nil, err
	}

	// A seen key wins over a malformed signature.
	state, err := r.store.State(ctx, key)
	if err != nil {
		err = errors.Wrap(err, "load key state")
		r.fatal(ctx, key, err)
		return nil, err
	}
	if state.Seen() {
		err = errors.Wrapf(ErrAlreadySubmitted, "registry key %s", key.Hex())
		r.fatal(ctx, key, err)
		return nil, err
	}

	if err := sub.validateSignatureLength(); err != nil {
		r.fatal(ctx, key, err)
		return nil, err
	}

	if err := r.store.Reserve(ctx, key); err != nil {
		r.fatal(ctx, key, err)
		return nil, err
	}

	result, err := VerifySubmission(sub)
	if err != nil {
		// The length was checked before Reserve; reaching here means the store
		// holds a Pending key that will never settle.
		r.logger.Error("signature check failed after reservation",
			zap.String("registry_key", key.Hex()), zap.Error(err))
		return nil, errors.Wrap(err, "verify signature")
	}

	var notification Notification
	if result.Matched {
		rec := Record{Attester: sub.ClaimedAttester, Holder: caller}
		if err := r.store.Settle(ctx, key, KeyStateVerified, rec); err != nil {
			r.logger.Error("failed to settle verified key",
				zap.String("registry_key", key.Hex()), zap.Error(err))
			return nil, errors.Wrap(err, "settle verified key")
		}
		notification = newNotification(VCVerifySuccess, key, sub.ClaimedAttester, r.now())
		r.metrics.RecordSubmission(ctx, metrics.OutcomeVerified, sub.UseEIP191)
		r.metrics.RecordVerifyDuration(ctx, time.Since(start), metrics.OutcomeVerified)
	} else {
		if err := r.store.Settle(ctx, key, KeyStateRejected, Record{}); err != nil {
			r.logger.Error("failed to settle rejected key",
				zap.String("registry_key", key.Hex()), zap.Error(err))
			return nil, errors.Wrap(err, "settle rejected key")
		}
		notification = newNotification(VCVerifyFail, key, common.Address{}, r.now())
		r.metrics.RecordSubmission(ctx, metrics.OutcomeRejected, sub.UseEIP191)
		r.metrics.RecordVerifyDuration(ctx, time.Since(start), metrics.OutcomeRejected)

		fields := []zap.Field{
			zap.String("registry_key", key.Hex()),
			zap.String("claimed_attester", sub.ClaimedAttester.Hex()),
			zap.String("recovered_signer", result.Signer.Hex()),
		}
		if result.RecoveryErr != nil {
			fields = append(fields, zap.NamedError("recovery_error", result.RecoveryErr))
		}
		r.logger.Debug("credential signature did not match claimed attester", fields...)
	}

	r.notifier.Notify(ctx, notification)
	return &notification, nil
}

// AttesterOf returns the attester recorded for key, or the zero address when the
// key is unseen, pending or rejected.
func (r *Registry) AttesterOf(ctx context.Context, key RegistryKey) (addr common.Address, err error) {
	ctx, endSpan := tracing.TraceOp(ctx, tracing.OpAttesterOf, attribute.String("registry_key", key.Hex()))
	defer func() { endSpan(err) }()

	rec, err := r.store.Record(ctx, key)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "load attester")
	}
	return rec.Attester, nil
}

// HolderOf returns the holder recorded for key, or the zero address when the key
// is unseen, pending or rejected.
func (r *Registry) HolderOf(ctx context.Context, key RegistryKey) (addr common.Address, err error) {
	ctx, endSpan := tracing.TraceOp(ctx, tracing.OpHolderOf, attribute.String("registry_key", key.Hex()))
	defer func() { endSpan(err) }()

	rec, err := r.store.Record(ctx, key)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "load holder")
	}
	return rec.Holder, nil
}

// StateOf returns the lifecycle state of key.
func (r *Registry) StateOf(ctx context.Context, key RegistryKey) (KeyState, error) {
	state, err := r.store.State(ctx, key)
	if err != nil {
		return KeyStateUnseen, errors.Wrap(err, "load key state")
	}
	return state, nil
}

// Lookup returns the state and record of key in one call. It holds the
// submission lock so the pair is never observed mid-settle.
func (r *Registry) Lookup(ctx context.Context, key RegistryKey) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.StateOf(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	rec, err := r.store.Record(ctx, key)
	if err != nil {
		return Entry{}, errors.Wrap(err, "load record")
	}
	return Entry{Key: key, State: state, Record: rec}, nil
}

// Records lists every seen key in reservation order.
func (r *Registry) Records(ctx context.Context) ([]Entry, error) {
	entries, err := r.store.Entries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list entries")
	}
	return entries, nil
}

func (r *Registry) fatal(ctx context.Context, key RegistryKey, err error) {
	reason := fatalReason(err)
	r.metrics.RecordFatal(ctx, reason)
	r.logger.Debug("submission rejected",
		zap.String("registry_key", key.Hex()),
		zap.String("reason", reason),
		zap.Error(err))
}

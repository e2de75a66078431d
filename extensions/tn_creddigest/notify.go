package tn_creddigest

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationKind names the two terminal outcomes of a submission.
type NotificationKind string

const (
	VCVerifySuccess NotificationKind = "vcVerifySuccess"
	VCVerifyFail    NotificationKind = "vcVerifyFail"
)

// Notification is emitted exactly once per accepted submission, after its key
// reached Verified or Rejected. Attester is the zero address for VCVerifyFail.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Kind      NotificationKind `json:"event"`
	Key       RegistryKey      `json:"registry_key"`
	Attester  common.Address   `json:"attester"`
	EmittedAt time.Time        `json:"emitted_at"`
}

// Succeeded reports whether the notification is a VCVerifySuccess.
func (n *Notification) Succeeded() bool {
	return n != nil && n.Kind == VCVerifySuccess
}

// Notifier receives notifications. Implementations must not block for long: they
// run inside the registry's critical section.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// MultiNotifier fans a notification out to every non-nil notifier in order.
func MultiNotifier(notifiers ...Notifier) Notifier {
	filtered := make(multiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// LogNotifier writes every notification to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n.
func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{
		zap.String("event", string(n.Kind)),
		zap.String("id", n.ID.String()),
		zap.String("registry_key", n.Key.Hex()),
	}
	if n.Kind == VCVerifySuccess {
		fields = append(fields, zap.String("attester", n.Attester.Hex()))
	}
	l.logger.Info("credential digest notification", fields...)
}

func newNotification(kind NotificationKind, key RegistryKey, attester common.Address, now time.Time) Notification {
	return Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Key:       key,
		Attester:  attester,
		EmittedAt: now.UTC(),
	}
}

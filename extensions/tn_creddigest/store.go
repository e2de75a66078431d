package tn_creddigest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// KeyState is the lifecycle position of a registry key.
// Unseen -> Pending -> Verified | Rejected. Verified and Rejected are terminal.
type KeyState uint8

const (
	KeyStateUnseen KeyState = iota
	KeyStatePending
	KeyStateVerified
	KeyStateRejected
)

func (s KeyState) String() string {
	switch s {
	case KeyStateUnseen:
		return "unseen"
	case KeyStatePending:
		return "pending"
	case KeyStateVerified:
		return "verified"
	case KeyStateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s KeyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Seen reports whether the key has left Unseen.
func (s KeyState) Seen() bool {
	return s != KeyStateUnseen
}

// Terminal reports whether no further transition is possible.
func (s KeyState) Terminal() bool {
	return s == KeyStateVerified || s == KeyStateRejected
}

// Record is the attestation stored for a verified key. The zero value stands for
// an absent or rejected key.
type Record struct {
	Attester common.Address `json:"attester"`
	Holder   common.Address `json:"holder"`
}

// Entry is one row of the seen set joined with its record.
type Entry struct {
	Key       RegistryKey `json:"registry_key"`
	State     KeyState    `json:"state"`
	Record    Record      `json:"record"`
	SeenAt    time.Time   `json:"seen_at"`
	SettledAt *time.Time  `json:"settled_at,omitempty"`
}

// Store persists the seen set and the attester/holder tables. The seen set is
// tracked independently of the two address tables so rejected keys are
// remembered too.
type Store interface {
	// Reserve moves key from Unseen to Pending as one atomic check-and-set.
	// It returns ErrAlreadySubmitted when the key was seen before.
	Reserve(ctx context.Context, key RegistryKey) error
	// Settle moves a Pending key to Verified (writing rec) or Rejected (ignoring
	// rec). It returns ErrKeyNotPending for any other starting state.
	Settle(ctx context.Context, key RegistryKey, state KeyState, rec Record) error
	// State returns KeyStateUnseen for unknown keys.
	State(ctx context.Context, key RegistryKey) (KeyState, error)
	// Record returns the zero Record for unknown or rejected keys.
	Record(ctx context.Context, key RegistryKey) (Record, error)
	// Entries lists every seen key in the order it was reserved.
	Entries(ctx context.Context) ([]Entry, error)
	Close() error
}

func validateSettle(state KeyState, rec Record) error {
	switch state {
	case KeyStateVerified:
		if rec.Attester == (common.Address{}) {
			return errors.New("verified record requires a non-zero attester")
		}
		return nil
	case KeyStateRejected:
		return nil
	default:
		return errors.Errorf("cannot settle into state %s", state)
	}
}

type memEntry struct {
	state     KeyState
	seenAt    time.Time
	settledAt *time.Time
}

// MemoryStore is an in-process Store. The seen set keeps insertion order for
// listing and never shrinks.
type MemoryStore struct {
	mu        sync.RWMutex
	seen      map[RegistryKey]*memEntry
	order     []RegistryKey
	attesters map[RegistryKey]common.Address
	holders   map[RegistryKey]common.Address
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:      make(map[RegistryKey]*memEntry),
		order:     make([]RegistryKey, 0),
		attesters: make(map[RegistryKey]common.Address),
		holders:   make(map[RegistryKey]common.Address),
		now:       time.Now,
	}
}

func (m *MemoryStore) Reserve(ctx context.Context, key RegistryKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return errors.Wrapf(ErrAlreadySubmitted, "registry key %s", key.Hex())
	}

	m.seen[key] = &memEntry{state: KeyStatePending, seenAt: m.now().UTC()}
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryStore) Settle(ctx context.Context, key RegistryKey, state KeyState, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSettle(state, rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.seen[key]
	if !exists || entry.state != KeyStatePending {
		return errors.Wrapf(ErrKeyNotPending, "registry key %s", key.Hex())
	}

	settledAt := m.now().UTC()
	entry.state = state
	entry.settledAt = &settledAt
	if state == KeyStateVerified {
		m.attesters[key] = rec.Attester
		m.holders[key] = rec.Holder
	}
	return nil
}

func (m *MemoryStore) State(ctx context.Context, key RegistryKey) (KeyState, error) {
	if err := ctx.Err(); err != nil {
		return KeyStateUnseen, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if entry, exists := m.seen[key]; exists {
		return entry.state, nil
	}
	return KeyStateUnseen, nil
}

func (m *MemoryStore) Record(ctx context.Context, key RegistryKey) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return Record{Attester: m.attesters[key], Holder: m.holders[key]}, nil
}

func (m *MemoryStore) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.order))
	for _, key := range m.order {
		e := m.seen[key]
		entries = append(entries, Entry{
			Key:       key,
			State:     e.state,
			Record:    Record{Attester: m.attesters[key], Holder: m.holders[key]},
			SeenAt:    e.seenAt,
			SettledAt: e.settledAt,
		})
	}
	return entries, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

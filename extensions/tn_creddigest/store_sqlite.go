package tn_creddigest

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest/internal"
	storeerrors "github.com/trufnetwork/creddigest/extensions/tn_creddigest/internal/errors"
)

// DefaultBusyTimeout bounds how long a store operation retries while another
// process holds the SQLite write lock.
const DefaultBusyTimeout = 2 * time.Second

// SQLiteStore persists the registry in a SQLite database file. Reserve is a
// single INSERT guarded by the UNIQUE registry_key column, so several processes
// sharing one file still consume each key at most once.
type SQLiteStore struct {
	db          *sql.DB
	logger      *zap.Logger
	busyTimeout time.Duration
	now         func() time.Time
}

// SQLiteOption configures an SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteLogger sets the logger used for retry diagnostics.
func WithSQLiteLogger(logger *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBusyTimeout overrides DefaultBusyTimeout. Zero or negative disables retries.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		s.busyTimeout = d
	}
}

// OpenSQLiteStore opens or creates the registry database at path. ":memory:"
// yields a private in-memory database.
func OpenSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// A single connection keeps ":memory:" databases shared and serialises writers
	// inside this process; cross-process contention is handled by retries.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:          db,
		logger:      zap.NewNop(),
		busyTimeout: DefaultBusyTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.withRetry(ctx, "ensure_schema", func() error {
		return internal.EnsureSchema(ctx, db)
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure registry schema")
	}

	return s, nil
}

func (s *SQLiteStore) Reserve(ctx context.Context, key RegistryKey) error {
	return s.withRetry(ctx, "reserve", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO `+internal.SeenKeysTable+` (registry_key, state, seen_at)
			VALUES (?, ?, ?)
			ON CONFLICT (registry_key) DO NOTHING`,
			key[:], int(KeyStatePending), formatTime(s.now()))
		if err != nil {
			return errors.Wrap(err, "insert seen key")
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "read reserve result")
		}
		if inserted == 0 {
			return errors.Wrapf(ErrAlreadySubmitted, "registry key %s", key.Hex())
		}
		return nil
	})
}

func (s *SQLiteStore) Settle(ctx context.Context, key RegistryKey, state KeyState, rec Record) error {
	if err := validateSettle(state, rec); err != nil {
		return err
	}

	return s.withRetry(ctx, "settle", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin settle tx")
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			UPDATE `+internal.SeenKeysTable+`
			SET state = ?, settled_at = ?
			WHERE registry_key = ? AND state = ?`,
			int(state), formatTime(s.now()), key[:], int(KeyStatePending))
		if err != nil {
			return errors.Wrap(err, "update seen key")
		}
		updated, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "read settle result")
		}
		if updated == 0 {
			return errors.Wrapf(ErrKeyNotPending, "registry key %s", key.Hex())
		}

		if state == KeyStateVerified {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+internal.AttestersTable+` (registry_key, attester) VALUES (?, ?)`,
				key[:], rec.Attester.Bytes()); err != nil {
				return errors.Wrap(err, "insert attester")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+internal.HoldersTable+` (registry_key, holder) VALUES (?, ?)`,
				key[:], rec.Holder.Bytes()); err != nil {
				return errors.Wrap(err, "insert holder")
			}
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "commit settle tx")
		}
		return nil
	})
}

func (s *SQLiteStore) State(ctx context.Context, key RegistryKey) (KeyState, error) {
	var state int
	err := s.withRetry(ctx, "state", func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT state FROM `+internal.SeenKeysTable+` WHERE registry_key = ?`, key[:]).Scan(&state)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return KeyStateUnseen, nil
	}
	if err != nil {
		return KeyStateUnseen, errors.Wrap(err, "load key state")
	}
	return KeyState(state), nil
}

func (s *SQLiteStore) Record(ctx context.Context, key RegistryKey) (Record, error) {
	var attester, holder []byte
	err := s.withRetry(ctx, "record", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT a.attester, h.holder
			FROM `+internal.AttestersTable+` a
			JOIN `+internal.HoldersTable+` h ON h.registry_key = a.registry_key
			WHERE a.registry_key = ?`, key[:]).Scan(&attester, &holder)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "load record")
	}
	return Record{
		Attester: common.BytesToAddress(attester),
		Holder:   common.BytesToAddress(holder),
	}, nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.withRetry(ctx, "entries", func() error {
		entries = entries[:0]

		rows, err := s.db.QueryContext(ctx, `
			SELECT s.registry_key, s.state, s.seen_at, s.settled_at, a.attester, h.holder
			FROM `+internal.SeenKeysTable+` s
			LEFT JOIN `+internal.AttestersTable+` a ON a.registry_key = s.registry_key
			LEFT JOIN `+internal.HoldersTable+` h ON h.registry_key = s.registry_key
			ORDER BY s.seq`)
		if err != nil {
			return errors.Wrap(err, "query entries")
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rawKey, attester, holder []byte
				state                    int
				seenAt                   string
				settledAt                sql.NullString
			)
			if err := rows.Scan(&rawKey, &state, &seenAt, &settledAt, &attester, &holder); err != nil {
				return errors.Wrap(err, "scan entry")
			}

			entry := Entry{
				State: KeyState(state),
				Record: Record{
					Attester: addressOrZero(attester),
					Holder:   addressOrZero(holder),
				},
			}
			copy(entry.Key[:], rawKey)

			if entry.SeenAt, err = parseTime(seenAt); err != nil {
				return errors.Wrap(err, "parse seen_at")
			}
			if settledAt.Valid {
				ts, err := parseTime(settledAt.String)
				if err != nil {
					return errors.Wrap(err, "parse settled_at")
				}
				entry.SettledAt = &ts
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or the
// busy timeout elapses.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.busyTimeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 10 * time.Millisecond
		exp.MaxInterval = 250 * time.Millisecond
		exp.MaxElapsedTime = s.busyTimeout
		policy = exp
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if storeerrors.IsRetryableError(err) {
			s.logger.Debug("sqlite busy, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

func addressOrZero(b []byte) common.Address {
	if len(b) == 0 {
		return common.Address{}
	}
	return common.BytesToAddress(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

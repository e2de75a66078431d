package internal

import (
	"context"
	"database/sql"
	"fmt"
)

// Table names of the persisted registry. The seen set is its own table so
// rejected keys are remembered without touching the address tables.
const (
	SeenKeysTable  = "seen_keys"
	AttestersTable = "vc_attesters"
	HoldersTable   = "vc_holders"
)

// EnsureSchema creates the registry tables. It is idempotent so it can run on
// every open.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []struct {
		name string
		sql  string
	}{
		{SeenKeysTable, `
			CREATE TABLE IF NOT EXISTS ` + SeenKeysTable + ` (
				seq          INTEGER PRIMARY KEY AUTOINCREMENT,
				registry_key BLOB NOT NULL UNIQUE,
				state        INTEGER NOT NULL,
				seen_at      TEXT NOT NULL,
				settled_at   TEXT
			)`},
		{AttestersTable, `
			CREATE TABLE IF NOT EXISTS ` + AttestersTable + ` (
				registry_key BLOB PRIMARY KEY,
				attester     BLOB NOT NULL
			)`},
		{HoldersTable, `
			CREATE TABLE IF NOT EXISTS ` + HoldersTable + ` (
				registry_key BLOB PRIMARY KEY,
				holder       BLOB NOT NULL
			)`},
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("create %s table: %w", stmt.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

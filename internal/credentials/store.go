// Package credentials implements the opaque (service, key) -> string
// credential store of spec §6 ("internal/credentials.Store implements the
// opaque (service, key) → string Credentials contract over SQLite"),
// backed by the pure-Go modernc.org/sqlite driver so the binary stays
// cgo-free.
package credentials

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed credential table, satisfying
// adapter.Credentials.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the credential database at path and runs
// its migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("credentials: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("credentials: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			service TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (service, key)
		);
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements adapter.Credentials: a synchronous lookup, since adapters
// call it inline during a scan rather than as a background operation.
func (s *Store) Get(service, key string) (string, bool) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM credentials WHERE service = ? AND key = ?`,
		service, key,
	).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores or overwrites a credential.
func (s *Store) Set(ctx context.Context, service, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (service, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (service, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, service, key, value)
	if err != nil {
		return fmt.Errorf("credentials: set %s/%s: %w", service, key, err)
	}
	return nil
}

// Delete removes a credential, if present.
func (s *Store) Delete(ctx context.Context, service, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE service = ? AND key = ?`, service, key)
	if err != nil {
		return fmt.Errorf("credentials: delete %s/%s: %w", service, key, err)
	}
	return nil
}

// EnvStore is a zero-dependency Credentials implementation that resolves
// (service, key) to the environment variable LABTOPO_<SERVICE>_<KEY>,
// uppercased. Useful for CI and for operators who don't want a database at
// all.
type EnvStore struct{}

// Get implements adapter.Credentials by reading an environment variable.
func (EnvStore) Get(service, key string) (string, bool) {
	return envLookup(service, key)
}

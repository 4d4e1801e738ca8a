// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetValue loads the JSON value stored under key into dest.
// It reports false when the key has never been written.
func (s *Store) GetValue(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return true, nil
}

// SetValue stores value under key as JSON, replacing any previous value.
func (s *Store) SetValue(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	return err
}

// Namespace is a key-value view of the store that prefixes every key.
type Namespace struct {
	store  *Store
	prefix string
}

// Namespaced returns a view where every key is stored as "<prefix>_<key>".
func (s *Store) Namespaced(prefix string) *Namespace {
	return &Namespace{store: s, prefix: prefix}
}

func (n *Namespace) key(k string) string {
	if n.prefix == "" {
		return k
	}
	return n.prefix + "_" + k
}

// Get loads key into dest and reports whether it was present.
func (n *Namespace) Get(ctx context.Context, key string, dest any) (bool, error) {
	return n.store.GetValue(ctx, n.key(key), dest)
}

// Set stores value under key.
func (n *Namespace) Set(ctx context.Context, key string, value any) error {
	return n.store.SetValue(ctx, n.key(key), value)
}

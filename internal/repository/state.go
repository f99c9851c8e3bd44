// Package repository provides SQL persistence for the client's durable
// key/value state (the stored token and user profile).
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// StateRepository reads and writes rows of the client_state table.
type StateRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewStateRepository creates a StateRepository over db.
// db must already contain the client_state table (see db.InitState).
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{DB: db}
}

// PutAll upserts every key/value pair in a single transaction, so readers
// observe either all of the new values or none of them.
func (r *StateRepository) PutAll(ctx context.Context, values map[string]string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range slices.Sorted(maps.Keys(values)) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_state (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, key, values[key]); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAll returns the values stored for keys. Missing keys are absent from
// the returned map.
func (r *StateRepository) GetAll(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		var value string
		err := r.DB.QueryRowContext(ctx,
			`SELECT value FROM client_state WHERE key = $1`, key,
		).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

// Has reports whether key is stored.
func (r *StateRepository) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM client_state WHERE key = $1)`, key,
	).Scan(&exists)
	return exists, err
}

// DeleteAll removes keys in a single transaction.
func (r *StateRepository) DeleteAll(ctx context.Context, keys ...string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE key = $1`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Package store is the persistence layer over database/sql. A Store wraps
// the connection pool for standalone reads; InTx hands callers a Tx exposing
// the same query surface inside a single all-or-nothing transaction, which
// is the commit boundary the session assembly pipeline runs in.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-constraint violations, typically a
	// theme-creation race between concurrent uploads.
	ErrConflict = errors.New("conflict")
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries run against.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q dbtx
}

// Store executes queries directly on the pool.
type Store struct {
	db *sql.DB
	queries
}

func New(db *sql.DB) *Store {
	return &Store{db: db, queries: queries{q: db}}
}

// Tx exposes the query surface bound to one transaction.
type Tx struct {
	queries
}

// InTx runs fn inside a transaction, committing on nil error. The rollback
// is unconditional so an error or a panic unwinding out of fn releases the
// single pooled connection; after a successful commit it is a no-op.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{queries: queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapConstraintErr converts driver-level unique violations to ErrConflict so
// callers can react (retry the theme match) without inspecting error text.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(raw), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return list, nil
}

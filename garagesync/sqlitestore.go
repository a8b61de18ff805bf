// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a RowStore adapter backed by a SQLite table. Each
// collection maps to one table holding the primary key, the freshness
// timestamp (epoch ms, maintained for since-filtered scans) and the full
// row as JSON.
type SQLiteStore struct {
	db         *sql.DB
	collection Collection
	table      string
	now        func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database suitable for row store
// use, enabling WAL mode and foreign keys.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// NewSQLiteStore creates the collection's table if needed and returns the
// adapter.
func NewSQLiteStore(db *sql.DB, c Collection) (*SQLiteStore, error) {
	table := "garage_" + c.Name
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id       TEXT PRIMARY KEY,
			fresh_ms INTEGER NOT NULL DEFAULT 0,
			payload  TEXT NOT NULL
		)`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLiteStore{db: db, collection: c, table: table, now: time.Now}, nil
}

func (s *SQLiteStore) Scan(ctx context.Context, since int64) ([]Row, error) {
	query := fmt.Sprintf(`SELECT payload FROM %q ORDER BY rowid`, s.table)
	args := []any{}
	if since > 0 {
		query = fmt.Sprintf(`SELECT payload FROM %q WHERE fresh_ms > ? ORDER BY rowid`, s.table)
		args = append(args, since)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.collection.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}
		var row Row
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, fmt.Errorf("failed to decode row payload: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.collection.Name, err)
	}
	return out, nil
}

func (s *SQLiteStore) GetByKey(ctx context.Context, id string) (Row, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %q WHERE id = ?`, s.table), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s row: %w", s.collection.Name, err)
	}
	var row Row
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return nil, fmt.Errorf("failed to decode row payload: %w", err)
	}
	return row, nil
}

func (s *SQLiteStore) Append(ctx context.Context, row Row) (Row, error) {
	stored := prepareAppend(s.collection, row, s.now())
	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *SQLiteStore) UpdateByKey(ctx context.Context, id string, patch Row) (Row, error) {
	row, err := s.GetByKey(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := applyPatch(s.collection, row, patch, s.now())
	if err := s.put(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteByKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s row: %w", s.collection.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) put(ctx context.Context, row Row) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (id, fresh_ms, payload) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET fresh_ms = excluded.fresh_ms, payload = excluded.payload
	`, s.table), row.Key(s.collection.KeyField), freshnessMillis(s.collection, row), string(payload))
	if err != nil {
		return fmt.Errorf("failed to write %s row: %w", s.collection.Name, err)
	}
	return nil
}

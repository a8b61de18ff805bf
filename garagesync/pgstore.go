// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a RowStore adapter backed by a Postgres table with a JSONB
// payload column. One table per collection, mirroring the SQLite adapter's
// layout.
type PGStore struct {
	pool       *pgxpool.Pool
	collection Collection
	table      string
	now        func() time.Time
}

// NewPGStore creates the collection's table if needed and returns the
// adapter.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, c Collection) (*PGStore, error) {
	table := "garage_" + c.Name
	_, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id       TEXT PRIMARY KEY,
			fresh_ms BIGINT NOT NULL DEFAULT 0,
			payload  JSONB NOT NULL
		)`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &PGStore{pool: pool, collection: c, table: table, now: time.Now}, nil
}

func (s *PGStore) Scan(ctx context.Context, since int64) ([]Row, error) {
	query := fmt.Sprintf(`SELECT payload FROM %q ORDER BY fresh_ms, id`, s.table)
	args := []any{}
	if since > 0 {
		query = fmt.Sprintf(`SELECT payload FROM %q WHERE fresh_ms > $1 ORDER BY fresh_ms, id`, s.table)
		args = append(args, since)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.collection.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}
		var row Row
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("failed to decode row payload: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.collection.Name, err)
	}
	return out, nil
}

func (s *PGStore) GetByKey(ctx context.Context, id string) (Row, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT payload FROM %q WHERE id = $1`, s.table), id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s row: %w", s.collection.Name, err)
	}
	var row Row
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row payload: %w", err)
	}
	return row, nil
}

func (s *PGStore) Append(ctx context.Context, row Row) (Row, error) {
	stored := prepareAppend(s.collection, row, s.now())
	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PGStore) UpdateByKey(ctx context.Context, id string, patch Row) (Row, error) {
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

func (s *PGStore) DeleteByKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s row: %w", s.collection.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) put(ctx context.Context, row Row) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %q (id, fresh_ms, payload) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET fresh_ms = EXCLUDED.fresh_ms, payload = EXCLUDED.payload
	`, s.table), row.Key(s.collection.KeyField), freshnessMillis(s.collection, row), payload)
	if err != nil {
		return fmt.Errorf("failed to write %s row: %w", s.collection.Name, err)
	}
	return nil
}

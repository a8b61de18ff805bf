// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Meta keys persisted alongside the collection snapshots.
const (
	MetaLastSync   = "last_sync"   // epoch ms of last fully successful sync
	MetaBackendURL = "backend_url" // configured deployment URL
)

// Pending ledger kinds. A push entry marks a locally created or updated
// record whose remote write has not been confirmed; a delete entry marks a
// locally deleted record whose remote delete has not been confirmed.
const (
	PendingPush   = "push"
	PendingDelete = "delete"
)

// LocalStore is the client's working copy: one JSON snapshot per
// collection plus meta keys and the pending-operation ledgers, all in a
// single SQLite database. It is the sole source of truth while offline.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (or creates) the local database and its tables.
func OpenLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS garage_snapshots (
			collection TEXT PRIMARY KEY,
			payload    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS garage_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS garage_pending (
			kind       TEXT NOT NULL CHECK (kind IN ('push','delete')),
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			queued_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (kind, collection, id)
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return nil, fmt.Errorf("failed to create local store table: %w", err)
		}
	}
	return &LocalStore{db: db}, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error { return s.db.Close() }

// ReadCollection returns the stored snapshot for a collection. A missing
// snapshot is an empty collection, not an error.
func (s *LocalStore) ReadCollection(name string) ([]Record, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM garage_snapshots WHERE collection = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot: %w", name, err)
	}
	var records []Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", name, err)
	}
	return records, nil
}

// WriteCollection replaces a collection's snapshot.
func (s *LocalStore) WriteCollection(name string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO garage_snapshots (collection, payload) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET payload = excluded.payload
	`, name, string(payload))
	if err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", name, err)
	}
	return nil
}

// Meta returns a meta value, or "" when the key has never been set.
func (s *LocalStore) Meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM garage_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a meta value.
func (s *LocalStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO garage_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

// LastSync returns the timestamp of the last fully successful sync, if any.
func (s *LocalStore) LastSync() (time.Time, bool, error) {
	value, err := s.Meta(MetaLastSync)
	if err != nil || value == "" {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastSync stamps the last successful sync time.
func (s *LocalStore) SetLastSync(t time.Time) error {
	return s.SetMeta(MetaLastSync, strconv.FormatInt(t.UnixMilli(), 10))
}

// BackendURL returns the configured deployment URL, or "" for offline-only
// mode.
func (s *LocalStore) BackendURL() (string, error) {
	return s.Meta(MetaBackendURL)
}

// SetBackendURL persists the deployment URL.
func (s *LocalStore) SetBackendURL(u string) error {
	return s.SetMeta(MetaBackendURL, u)
}

// AddPending records an unconfirmed remote operation for a record.
func (s *LocalStore) AddPending(kind, collection, id string) error {
	_, err := s.db.Exec(`
		INSERT INTO garage_pending (kind, collection, id) VALUES (?, ?, ?)
		ON CONFLICT(kind, collection, id) DO NOTHING
	`, kind, collection, id)
	if err != nil {
		return fmt.Errorf("failed to queue pending %s for %s/%s: %w", kind, collection, id, err)
	}
	return nil
}

// RemovePending clears a pending entry once the remote operation is
// confirmed.
func (s *LocalStore) RemovePending(kind, collection, id string) error {
	_, err := s.db.Exec(`
		DELETE FROM garage_pending WHERE kind = ? AND collection = ? AND id = ?
	`, kind, collection, id)
	if err != nil {
		return fmt.Errorf("failed to clear pending %s for %s/%s: %w", kind, collection, id, err)
	}
	return nil
}

// ListPending returns the ids with unconfirmed remote operations of the
// given kind for a collection, oldest first.
func (s *LocalStore) ListPending(kind, collection string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM garage_pending
		WHERE kind = ? AND collection = ?
		ORDER BY queued_at
	`, kind, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending %s for %s: %w", kind, collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ids: %w", err)
	}
	return ids, nil
}

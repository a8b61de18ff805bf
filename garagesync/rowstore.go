// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Row is a flat record: field name to primitive value (string, number,
// ISO-8601 date string). Rows have no nested structure; relationships are
// soft id fields.
type Row map[string]any

// ErrNotFound is returned by point lookups and keyed mutations when the
// target row does not exist.
var ErrNotFound = errors.New("row not found")

// RowStore exposes tabular persistence for a single collection. All
// timestamps used by Scan's since filter are epoch milliseconds derived
// from the collection's freshness field.
type RowStore interface {
	// Scan returns all rows, or only rows whose freshness timestamp is
	// strictly newer than since when since > 0.
	Scan(ctx context.Context, since int64) ([]Row, error)

	// GetByKey returns the row with the given primary key, or ErrNotFound.
	GetByKey(ctx context.Context, id string) (Row, error)

	// Append stores a new row, assigning a server-side id when the key
	// field is empty and stamping lifecycle timestamps. Returns the row as
	// stored.
	Append(ctx context.Context, row Row) (Row, error)

	// UpdateByKey overlays patch fields onto the stored row, refreshing
	// last_updated for collections that carry it. ErrNotFound if absent.
	UpdateByKey(ctx context.Context, id string, patch Row) (Row, error)

	// DeleteByKey removes the row. ErrNotFound if absent.
	DeleteByKey(ctx context.Context, id string) error
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key returns the row's value for the given key field as a string, or ""
// when absent or not a string.
func (r Row) Key(field string) string {
	s, _ := r[field].(string)
	return s
}

// prepareAppend stamps a fresh id (when missing) and lifecycle timestamps
// on a row about to be appended. Shared by every adapter so that id
// assignment behaves identically regardless of the backing store.
func prepareAppend(c Collection, row Row, now time.Time) Row {
	out := row.Clone()
	if out.Key(c.KeyField) == "" {
		out[c.KeyField] = uuid.New().String()
	}
	stamp := now.UTC().Format(time.RFC3339)
	if out.Key("created_date") == "" {
		out["created_date"] = stamp
	}
	if c.FreshField == "last_updated" {
		out["last_updated"] = stamp
	}
	return out
}

// applyPatch overlays patch fields onto row, protecting the primary key and
// created_date from being rewritten and bumping last_updated where the
// collection tracks it.
func applyPatch(c Collection, row, patch Row, now time.Time) Row {
	out := row.Clone()
	for k, v := range patch {
		if k == c.KeyField || k == "created_date" {
			continue
		}
		out[k] = v
	}
	if c.FreshField == "last_updated" {
		out["last_updated"] = now.UTC().Format(time.RFC3339)
	}
	return out
}

// freshnessMillis extracts the row's freshness timestamp as epoch
// milliseconds. String values are parsed as RFC3339; numeric values are
// taken as epoch milliseconds already. Rows with no usable timestamp
// report zero and are therefore excluded from since-filtered scans.
func freshnessMillis(c Collection, row Row) int64 {
	switch v := row[c.FreshField].(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0
		}
		return t.UnixMilli()
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

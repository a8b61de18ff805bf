// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory RowStore adapter. It preserves append order on
// scans and is safe for concurrent use. Suitable for tests and ephemeral
// deployments.
type MemStore struct {
	collection Collection

	mu    sync.RWMutex
	order []string
	rows  map[string]Row
	now   func() time.Time
}

// NewMemStore creates an empty in-memory store for the given collection.
func NewMemStore(c Collection) *MemStore {
	return &MemStore{
		collection: c,
		rows:       make(map[string]Row),
		now:        time.Now,
	}
}

func (s *MemStore) Scan(_ context.Context, since int64) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Row, 0, len(s.order))
	for _, id := range s.order {
		row := s.rows[id]
		if since > 0 && freshnessMillis(s.collection, row) <= since {
			continue
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

func (s *MemStore) GetByKey(_ context.Context, id string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return row.Clone(), nil
}

func (s *MemStore) Append(_ context.Context, row Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := prepareAppend(s.collection, row, s.now())
	id := stored.Key(s.collection.KeyField)
	if _, exists := s.rows[id]; !exists {
		s.order = append(s.order, id)
	}
	s.rows[id] = stored
	return stored.Clone(), nil
}

func (s *MemStore) UpdateByKey(_ context.Context, id string, patch Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := applyPatch(s.collection, row, patch, s.now())
	s.rows[id] = updated
	return updated.Clone(), nil
}

func (s *MemStore) DeleteByKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	delete(s.rows, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Version reported by the install endpoint.
const Version = "1.2.0"

// Service binds a RowStore to every collection and implements the CRUD
// semantics the router dispatches to: validation before mutation,
// since-filtered scans, and the bulk snapshot.
type Service struct {
	stores map[string]RowStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service over the given per-collection stores. Every
// collection returned by Collections must have a store.
func NewService(stores map[string]RowStore, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range Collections() {
		if stores[c.Name] == nil {
			return nil, fmt.Errorf("no row store registered for collection %q", c.Name)
		}
	}
	return &Service{stores: stores, logger: logger, now: time.Now}, nil
}

// Store returns the row store serving a collection.
func (s *Service) Store(name string) (RowStore, bool) {
	store, ok := s.stores[name]
	return store, ok
}

// List scans a collection, optionally narrowed to rows fresher than since
// (epoch ms).
func (s *Service) List(ctx context.Context, name string, since int64) ([]Row, error) {
	store, ok := s.stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	rows, err := store.Scan(ctx, since)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// Create validates and appends a row.
func (s *Service) Create(ctx context.Context, name string, row Row) (Row, error) {
	c, ok := CollectionByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	if err := Validate(c, row); err != nil {
		return nil, err
	}
	stored, err := s.stores[name].Append(ctx, row)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("row appended", "collection", name, "id", stored.Key(c.KeyField))
	return stored, nil
}

// Update overlays a patch onto an existing row. Enum fields present in
// the patch are validated; required fields are not, a patch may omit them.
func (s *Service) Update(ctx context.Context, name, id string, patch Row) (Row, error) {
	store, ok := s.stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	c, _ := CollectionByName(name)
	if err := ValidateEnums(c, patch); err != nil {
		return nil, err
	}
	updated, err := store.UpdateByKey(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("row updated", "collection", name, "id", id)
	return updated, nil
}

// Delete removes a row by key.
func (s *Service) Delete(ctx context.Context, name, id string) error {
	store, ok := s.stores[name]
	if !ok {
		return fmt.Errorf("unknown collection %q", name)
	}
	if err := store.DeleteByKey(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("row deleted", "collection", name, "id", id)
	return nil
}

// Snapshot returns the union of every collection's scan plus the server
// timestamp, for clients that prefer one round trip over four.
func (s *Service) Snapshot(ctx context.Context, since int64) (*SnapshotResponse, error) {
	resp := &SnapshotResponse{
		Collections: make(map[string][]Row, len(s.stores)),
		ServerTime:  s.now().UnixMilli(),
	}
	for _, c := range Collections() {
		rows, err := s.List(ctx, c.Name, since)
		if err != nil {
			return nil, fmt.Errorf("snapshot scan of %s failed: %w", c.Name, err)
		}
		resp.Collections[c.Name] = rows
	}
	return resp, nil
}

// Install describes the deployment for first-run probing by clients.
func (s *Service) Install() InstallResponse {
	names := make([]string, 0, len(s.stores))
	for _, c := range Collections() {
		names = append(names, c.Name)
	}
	return InstallResponse{
		Name:        "vehicle-maintenance-manager",
		Version:     Version,
		Collections: names,
	}
}

// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := OpenLocalStore(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLocalStore_SnapshotRoundtrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.ReadCollection("vehicles")
	require.NoError(t, err)
	require.Nil(t, missing, "a never-written collection reads as empty")

	records := []Record{
		{"vehicle_id": "1", "make": "Ford", "year": float64(2020)},
		{"vehicle_id": "2", "make": "Honda"},
	}
	require.NoError(t, store.WriteCollection("vehicles", records))

	got, err := store.ReadCollection("vehicles")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Ford", got[0]["make"])
	require.Equal(t, float64(2020), got[0]["year"])
}

func TestLocalStore_MetaAndLastSync(t *testing.T) {
	store := newTestStore(t)

	url, err := store.BackendURL()
	require.NoError(t, err)
	require.Empty(t, url, "absent configuration is a valid state")

	require.NoError(t, store.SetBackendURL("https://garage.example.com/api"))
	url, err = store.BackendURL()
	require.NoError(t, err)
	require.Equal(t, "https://garage.example.com/api", url)

	_, ok, err := store.LastSync()
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, store.SetLastSync(now))
	got, ok, err := store.LastSync()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, now.UnixMilli(), got.UnixMilli())
}

func TestLocalStore_PendingLedger(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddPending(PendingDelete, "vehicles", "a"))
	require.NoError(t, store.AddPending(PendingDelete, "vehicles", "b"))
	// Duplicate queueing is a no-op.
	require.NoError(t, store.AddPending(PendingDelete, "vehicles", "a"))

	ids, err := store.ListPending(PendingDelete, "vehicles")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)

	// Kinds and collections are independent ledgers.
	ids, err = store.ListPending(PendingPush, "vehicles")
	require.NoError(t, err)
	require.Empty(t, ids)
	ids, err = store.ListPending(PendingDelete, "receipts")
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, store.RemovePending(PendingDelete, "vehicles", "a"))
	ids, err = store.ListPending(PendingDelete, "vehicles")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids)
}

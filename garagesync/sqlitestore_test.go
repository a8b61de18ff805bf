// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSQLiteTestStore(t *testing.T, c Collection) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "rows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db, c)
	require.NoError(t, err)
	return store, db
}

func TestSQLiteStore_CRUDRoundtrip(t *testing.T) {
	c, _ := CollectionByName(ColMaintenance)
	store, _ := newSQLiteTestStore(t, c)
	ctx := context.Background()

	stored, err := store.Append(ctx, Row{
		"vehicle_id":   "v1",
		"type":         "oil_change",
		"service_date": "2025-05-01",
		"cost":         float64(89.5),
	})
	require.NoError(t, err)
	id := stored.Key("log_id")
	require.NotEmpty(t, id)
	require.NotEmpty(t, stored.Key("created_date"))

	got, err := store.GetByKey(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "oil_change", got["type"])
	require.Equal(t, float64(89.5), got["cost"])

	updated, err := store.UpdateByKey(ctx, id, Row{"cost": float64(99)})
	require.NoError(t, err)
	require.Equal(t, float64(99), updated["cost"])
	require.Equal(t, stored["created_date"], updated["created_date"])

	require.NoError(t, store.DeleteByKey(ctx, id))
	_, err = store.GetByKey(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.DeleteByKey(ctx, id), ErrNotFound)
}

func TestSQLiteStore_SinceFilteredScan(t *testing.T) {
	c, _ := CollectionByName(ColVehicles)
	store, _ := newSQLiteTestStore(t, c)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	_, err := store.Append(ctx, Row{"make": "Ford", "model": "F150"})
	require.NoError(t, err)

	store.now = func() time.Time { return t0.Add(10 * time.Second) }
	newer, err := store.Append(ctx, Row{"make": "Honda", "model": "Civic"})
	require.NoError(t, err)

	rows, err := store.Scan(ctx, t0.Add(5*time.Second).UnixMilli())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, newer.Key("vehicle_id"), rows[0].Key("vehicle_id"))
}

func TestSQLiteStore_UpdateRefreshesFreshness(t *testing.T) {
	c, _ := CollectionByName(ColVehicles)
	store, _ := newSQLiteTestStore(t, c)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	stored, err := store.Append(ctx, Row{"make": "Ford", "model": "F150"})
	require.NoError(t, err)

	store.now = func() time.Time { return t0.Add(time.Minute) }
	_, err = store.UpdateByKey(ctx, stored.Key("vehicle_id"), Row{"current_mileage": float64(50000)})
	require.NoError(t, err)

	// The updated vehicle is now visible to incremental pulls.
	rows, err := store.Scan(ctx, t0.Add(30*time.Second).UnixMilli())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, float64(50000), rows[0]["current_mileage"])
}

func TestSQLiteStore_SharedDatabaseAcrossCollections(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "rows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, c := range Collections() {
		store, err := NewSQLiteStore(db, c)
		require.NoError(t, err)
		row := Row{}
		for _, f := range c.Required {
			row[f] = "x"
		}
		_, err = store.Append(ctx, row)
		require.NoError(t, err)

		rows, err := store.Scan(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1, "collection %s", c.Name)
	}
}

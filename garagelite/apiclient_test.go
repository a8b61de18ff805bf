// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *APIClient {
	t.Helper()
	c := NewAPIClient(baseURL, nil)
	c.BaseDelay = 1 * time.Millisecond
	return c
}

func TestCall_NoConfigurationFailsWithoutNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, "")
	_, err := c.Call(context.Background(), "vehicles", http.MethodGet, nil, nil)
	require.Error(t, err)
	require.Equal(t, KindConfiguration, KindOf(err))
	require.Equal(t, int32(0), atomic.LoadInt32(&hits), "no network attempt expected")
}

func TestCall_RetryBoundExactlyThreeAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "vehicles", http.MethodGet, nil, nil)
	require.Error(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits), "exactly MaxAttempts attempts expected")

	var se *SyncError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "vehicles", se.Action)
	require.Equal(t, 3, se.Attempts)
}

func TestCall_ZeroMaxAttemptsStillMakesOneAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.MaxAttempts = 0
	_, err := c.Call(context.Background(), "vehicles", http.MethodGet, nil, nil)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits), "a non-positive bound clamps to one attempt")

	var se *SyncError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 1, se.Attempts)
}

func TestCall_ErrorEnvelopeIsRetriedForGet(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "busy"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	env, err := c.Call(context.Background(), "vehicles", http.MethodGet, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", env.Status)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestCall_ApplicationErrorNotRetriedForPost(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "rejected"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "vehicles", http.MethodPost, nil, Record{"make": "Ford"})
	require.Error(t, err)
	require.Equal(t, KindApplication, KindOf(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits), "POST must not be retried after an application error")
}

func TestCall_NotFoundIsTerminal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "vehicles/missing", http.MethodDelete, nil, nil)
	require.Error(t, err)
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCall_ActionAndIDTravelAsQueryParams(t *testing.T) {
	var gotAction, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.URL.Query().Get("action")
		gotID = r.URL.Query().Get("id")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), "vehicles/abc123", http.MethodPut, nil, Record{"make": "Ford"})
	require.NoError(t, err)
	require.Equal(t, "vehicles", gotAction)
	require.Equal(t, "abc123", gotID)
}

func TestCall_RawDataVariantDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The simpler wire variant: raw payload, no status field.
		w.Write([]byte(`{"data":[{"vehicle_id":"1","make":"Ford"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	env, err := c.Call(context.Background(), "vehicles", http.MethodGet, nil, nil)
	require.NoError(t, err)

	var records []Record
	require.NoError(t, env.DecodeData(&records))
	require.Len(t, records, 1)
	require.Equal(t, "Ford", records[0]["make"])
}

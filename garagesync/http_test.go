// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	stores := make(map[string]RowStore)
	for _, c := range Collections() {
		stores[c.Name] = NewMemStore(c)
	}
	svc, err := NewService(stores, nil)
	require.NoError(t, err)

	blobRoot := t.TempDir()
	blobs, err := NewDirBlobStore(blobRoot, "http://garage.local")
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(svc, blobs, nil).Handler(blobs.FileHandlerRoot()))
	t.Cleanup(srv.Close)
	return srv, blobRoot
}

func TestHandler_CORSHeadersOnEveryResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/install", "/vehicles", "/bogus"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
		require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE", path)
	}
}

func TestHandler_PreflightHasNoBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/vehicles", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	buf := make([]byte, 1)
	n, _ := resp.Body.Read(buf)
	require.Zero(t, n, "preflight body must be empty")
}

func TestHandler_EnvelopeOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{"make":"Ford","model":"F150"}`)
	resp, err := http.Post(srv.URL+"/vehicles", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var env struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, "ok", env.Status)
	require.NotEmpty(t, env.Data["vehicle_id"])
	require.NotEmpty(t, env.Data["last_updated"])
}

func TestHandler_UploadWritesBlobAndServesIt(t *testing.T) {
	srv, blobRoot := newTestServer(t)

	content := []byte("receipt scan bytes")
	body, err := json.Marshal(UploadRequest{
		Filename: "scan.png",
		MimeType: "image/png",
		Data:     base64.StdEncoding.EncodeToString(content),
		Folder:   "receipts",
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Status string         `json:"status"`
		Data   UploadResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, "http://garage.local/files/receipts/scan.png", env.Data.URL)

	written, err := os.ReadFile(filepath.Join(blobRoot, "receipts", "scan.png"))
	require.NoError(t, err)
	require.Equal(t, content, written)

	// The same server answers the URL path it handed out.
	fetched, err := http.Get(srv.URL + "/files/receipts/scan.png")
	require.NoError(t, err)
	defer fetched.Body.Close()
	require.Equal(t, http.StatusOK, fetched.StatusCode)
}

func TestHandler_UploadRejectsBadBase64(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"filename":"x.png","data":"not-!!-base64"}`)
	resp, err := http.Post(srv.URL+"/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, StatusError, env.Status)
}

func TestHandler_UploadEscapesPathComponents(t *testing.T) {
	srv, blobRoot := newTestServer(t)

	body, err := json.Marshal(UploadRequest{
		Filename: "../../etc/passwd",
		Data:     base64.StdEncoding.EncodeToString([]byte("x")),
		Folder:   "../outside",
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The write lands inside the blob root, never above it.
	_, err = os.Stat(filepath.Join(blobRoot, "outside", "passwd"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(blobRoot, "..", "outside"))
	require.True(t, os.IsNotExist(err))
}

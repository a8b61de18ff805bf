// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirBlobStore stores blobs on the local filesystem under root/<folder>/
// and builds URLs against the server's own /files/ route.
type DirBlobStore struct {
	Root    string
	BaseURL string // e.g. "https://garage.example.com", no trailing slash
}

// NewDirBlobStore creates the root directory if needed.
func NewDirBlobStore(root, baseURL string) (*DirBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &DirBlobStore{Root: root, BaseURL: baseURL}, nil
}

func (s *DirBlobStore) Put(_ context.Context, folder, filename, _ string, data []byte) (string, error) {
	// Strip any path components a client may have smuggled in.
	folder = filepath.Base(folder)
	filename = filepath.Base(filename)
	if folder == "." || folder == string(filepath.Separator) {
		folder = "uploads"
	}

	dir := filepath.Join(s.Root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob folder %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s/%s: %w", folder, filename, err)
	}
	return fmt.Sprintf("%s/files/%s/%s", s.BaseURL, folder, filename), nil
}

// FileHandlerRoot returns the directory the HTTP layer should serve under
// /files/.
func (s *DirBlobStore) FileHandlerRoot() string {
	return s.Root
}

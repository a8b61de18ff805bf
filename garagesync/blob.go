// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import "context"

// BlobStore stores uploaded binary payloads (receipt images) organized by
// folder name and returns a publicly dereferenceable URL for each object.
type BlobStore interface {
	Put(ctx context.Context, folder, filename, mimeType string, data []byte) (string, error)
}

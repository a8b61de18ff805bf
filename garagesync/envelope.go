// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

// Envelope is the uniform wrapper returned by every backend call.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK wraps data in a success envelope.
func OK(data any) Envelope {
	return Envelope{Status: StatusOK, Data: data}
}

// Error wraps a message in an error envelope.
func Error(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// SnapshotResponse is the bulk sync payload: every collection's scan plus
// the server timestamp (epoch ms) clients may use as their next since
// watermark.
type SnapshotResponse struct {
	Collections map[string][]Row `json:"collections"`
	ServerTime  int64            `json:"server_time"`
}

// InstallResponse describes the deployment for first-run probing.
type InstallResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Collections []string `json:"collections"`
}

// UploadRequest is the file upload payload: a base64-encoded blob plus
// placement metadata.
type UploadRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
	Folder   string `json:"folder"`
}

// UploadResponse carries the publicly dereferenceable URL of a stored blob.
type UploadResponse struct {
	URL string `json:"url"`
}

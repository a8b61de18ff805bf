// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

// Package garagelite is the client half of the vehicle maintenance
// manager: a SQLite-backed local store, an API client with bounded
// retries, a pure merge algorithm, and the sync engine orchestrating
// optimistic local writes against a best-effort remote.
package garagelite

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure so the UI collaborator can decide how to
// present it without inspecting error strings.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: no backend URL configured. Non-retryable.
	KindConfiguration
	// KindTransport: network, DNS or timeout failure. Retryable.
	KindTransport
	// KindApplication: the backend returned a structured error envelope.
	// Retried only for idempotent verbs.
	KindApplication
	// KindNotFound: the mutate/delete target does not exist. Non-retryable.
	KindNotFound
	// KindValidation: a required field is missing. Detected before any
	// network attempt.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// SyncError carries the failure kind plus diagnostics: the action that
// failed and how many attempts were made before giving up.
type SyncError struct {
	Kind     Kind
	Action   string
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Action != "" {
		msg += " for " + e.Action
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func newError(kind Kind, action string, err error) *SyncError {
	return &SyncError{Kind: kind, Action: action, Err: err}
}

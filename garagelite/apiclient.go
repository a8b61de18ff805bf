// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Envelope mirrors the backend's uniform response wrapper. The simpler
// wire variant (raw `{"data": [...]}` with no status field) decodes into
// an envelope with an empty Status, which is treated as success.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DecodeData unmarshals the envelope's data payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode envelope data: %w", err)
	}
	return nil
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultCallTimeout = 30 * time.Second
)

// APIClient performs one logical operation against the backend with
// bounded retries and linear backoff. It never touches the local store.
type APIClient struct {
	baseURL string
	HTTP    *http.Client

	// MaxAttempts bounds retries; values below 1 count as a single
	// attempt. BaseDelay scales the linear backoff (delay before attempt
	// n+1 is BaseDelay * n).
	MaxAttempts int
	BaseDelay   time.Duration
	CallTimeout time.Duration

	logger *slog.Logger
}

// NewAPIClient creates a client against the configured deployment URL.
// The URL is loaded once and cached; an empty URL yields a client whose
// every call fails fast with a configuration error.
func NewAPIClient(baseURL string, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: defaultCallTimeout},
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		CallTimeout: defaultCallTimeout,
		logger:      logger,
	}
}

// Configured reports whether a backend URL is present.
func (c *APIClient) Configured() bool { return c.baseURL != "" }

// Call performs one logical backend operation. action is the resource
// name, optionally with a record id suffix ("vehicles/abc123"); query
// carries extra parameters such as since. payload is serialized as a JSON
// body for POST and PUT.
//
// Transport failures, non-2xx statuses and error envelopes are retried up
// to MaxAttempts, except where retrying is unsafe or pointless: 400 and
// 404 are terminal, and application-level errors on POST are not retried
// to avoid duplicate creation.
func (c *APIClient) Call(ctx context.Context, action, method string, query url.Values, payload any) (*Envelope, error) {
	if !c.Configured() {
		return nil, newError(KindConfiguration, action, fmt.Errorf("no backend URL configured"))
	}

	target, err := c.buildURL(action, query)
	if err != nil {
		return nil, newError(KindConfiguration, action, err)
	}

	var body []byte
	if payload != nil && (method == http.MethodPost || method == http.MethodPut) {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, newError(KindValidation, action, fmt.Errorf("failed to encode payload: %w", err))
		}
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *SyncError
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		env, callErr := c.doCall(ctx, method, target, body)
		if callErr == nil {
			return env, nil
		}
		lastErr = callErr
		if !retryable(callErr.Kind, method) {
			break
		}
		if attempt < maxAttempts {
			c.logger.Debug("retrying backend call",
				"action", action, "attempt", attempt, "error", callErr.Err)
			if err := sleepWithContext(ctx, c.BaseDelay*time.Duration(attempt)); err != nil {
				lastErr = newError(KindTransport, action, err)
				break
			}
		}
	}

	lastErr.Action = action
	lastErr.Attempts = attempts
	return nil, lastErr
}

func (c *APIClient) doCall(ctx context.Context, method, target string, body []byte) (*Envelope, *SyncError) {
	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, newError(KindTransport, "", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, newError(KindTransport, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindTransport, "", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(KindNotFound, "", fmt.Errorf("server returned 404: %s", string(respBody)))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, newError(KindValidation, "", fmt.Errorf("server returned 400: %s", string(respBody)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newError(KindApplication, "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var env Envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil {
			// Parse failures join the same channel as transport failures.
			return nil, newError(KindTransport, "", fmt.Errorf("failed to decode response: %w", err))
		}
	}
	if env.Status == "error" {
		return nil, newError(KindApplication, "", fmt.Errorf("backend error: %s", env.Message))
	}
	return &env, nil
}

// buildURL appends the action as a query parameter to the configured base
// endpoint. A record id suffix in the action travels as an id parameter so
// the construction also works for fixed deployment URLs that cannot grow
// path segments.
func (c *APIClient) buildURL(action string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL %q: %w", c.baseURL, err)
	}
	resource, id, _ := strings.Cut(action, "/")

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("action", resource)
	if id != "" {
		q.Set("id", id)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func retryable(kind Kind, method string) bool {
	switch kind {
	case KindTransport:
		return true
	case KindApplication:
		// Do not retry POST after an application-level error; the create
		// may have landed and a retry would duplicate it.
		return method != http.MethodPost
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

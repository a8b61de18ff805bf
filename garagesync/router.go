// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Result is the transport-free outcome of routing one request: an HTTP
// status code and the envelope to serialize.
type Result struct {
	Status int
	Body   Envelope
}

// Router maps an inbound operation (resource, id, verb, payload) to a row
// store command. It depends only on the Service and BlobStore interfaces;
// the HTTP surface is a thin wrapper in http.go.
type Router struct {
	svc    *Service
	blobs  BlobStore
	logger *slog.Logger
}

// NewRouter creates a router. blobs may be nil when the deployment has no
// blob backend; upload requests then fail with a 500 envelope.
func NewRouter(svc *Service, blobs BlobStore, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{svc: svc, blobs: blobs, logger: logger}
}

// Route dispatches one request. The first path segment selects a
// collection handler (or upload|sync|install); the second segment, if
// present, is a record id. The legacy wire format carries the resource in
// an ?action= query parameter and the id in ?id= instead.
func (rt *Router) Route(ctx context.Context, method, resourcePath string, query url.Values, body []byte) Result {
	segments := strings.FieldsFunc(strings.Trim(resourcePath, "/"), func(r rune) bool { return r == '/' })

	resource := ""
	id := ""
	if len(segments) > 0 {
		resource = segments[0]
	}
	if len(segments) > 1 {
		id = segments[1]
	}
	if resource == "" {
		resource = query.Get("action")
	}
	if id == "" {
		id = query.Get("id")
	}

	switch resource {
	case "install":
		if method != http.MethodGet {
			return methodNotAllowed(method, resource)
		}
		return Result{Status: http.StatusOK, Body: OK(rt.svc.Install())}

	case "sync":
		return rt.routeSync(ctx, method, query)

	case "upload":
		return rt.routeUpload(ctx, method, body)
	}

	if _, ok := CollectionByName(resource); ok {
		return rt.routeCollection(ctx, method, resource, id, query, body)
	}

	return Result{Status: http.StatusNotFound, Body: Error("unknown resource: " + resource)}
}

func (rt *Router) routeSync(ctx context.Context, method string, query url.Values) Result {
	if method != http.MethodGet {
		return methodNotAllowed(method, "sync")
	}
	since, err := parseSince(query)
	if err != nil {
		return Result{Status: http.StatusBadRequest, Body: Error("since must be an integer (epoch ms)")}
	}
	snapshot, err := rt.svc.Snapshot(ctx, since)
	if err != nil {
		rt.logger.Error("bulk sync failed", "error", err)
		return Result{Status: http.StatusInternalServerError, Body: Error("sync failed")}
	}
	return Result{Status: http.StatusOK, Body: OK(snapshot)}
}

func (rt *Router) routeUpload(ctx context.Context, method string, body []byte) Result {
	if method != http.MethodPost {
		return methodNotAllowed(method, "upload")
	}
	if len(body) == 0 {
		return Result{Status: http.StatusBadRequest, Body: Error("upload requires a request body")}
	}
	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Result{Status: http.StatusBadRequest, Body: Error("invalid upload payload")}
	}
	if req.Filename == "" || req.Data == "" {
		return Result{Status: http.StatusBadRequest, Body: Error("upload requires filename and data")}
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return Result{Status: http.StatusBadRequest, Body: Error("data is not valid base64")}
	}
	if rt.blobs == nil {
		return Result{Status: http.StatusInternalServerError, Body: Error("blob storage not configured")}
	}
	folder := req.Folder
	if folder == "" {
		folder = "uploads"
	}
	url, err := rt.blobs.Put(ctx, folder, req.Filename, req.MimeType, data)
	if err != nil {
		rt.logger.Error("blob upload failed", "filename", req.Filename, "error", err)
		return Result{Status: http.StatusInternalServerError, Body: Error("upload failed")}
	}
	return Result{Status: http.StatusOK, Body: OK(UploadResponse{URL: url})}
}

func (rt *Router) routeCollection(ctx context.Context, method, name, id string, query url.Values, body []byte) Result {
	switch method {
	case http.MethodGet:
		if id != "" {
			store, _ := rt.svc.Store(name)
			row, err := store.GetByKey(ctx, id)
			if errors.Is(err, ErrNotFound) {
				return notFound(name, id)
			}
			if err != nil {
				return rt.internal("get", name, err)
			}
			return Result{Status: http.StatusOK, Body: OK(row)}
		}
		since, err := parseSince(query)
		if err != nil {
			return Result{Status: http.StatusBadRequest, Body: Error("since must be an integer (epoch ms)")}
		}
		rows, err := rt.svc.List(ctx, name, since)
		if err != nil {
			return rt.internal("scan", name, err)
		}
		return Result{Status: http.StatusOK, Body: OK(rows)}

	case http.MethodPost:
		row, result := decodeRow(body)
		if result != nil {
			return *result
		}
		stored, err := rt.svc.Create(ctx, name, row)
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Result{Status: http.StatusBadRequest, Body: Error(verr.Error())}
		}
		if err != nil {
			return rt.internal("append", name, err)
		}
		return Result{Status: http.StatusOK, Body: OK(stored)}

	case http.MethodPut:
		if id == "" {
			return Result{Status: http.StatusBadRequest, Body: Error("update requires a record id")}
		}
		patch, result := decodeRow(body)
		if result != nil {
			return *result
		}
		updated, err := rt.svc.Update(ctx, name, id, patch)
		if errors.Is(err, ErrNotFound) {
			return notFound(name, id)
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Result{Status: http.StatusBadRequest, Body: Error(verr.Error())}
		}
		if err != nil {
			return rt.internal("update", name, err)
		}
		return Result{Status: http.StatusOK, Body: OK(updated)}

	case http.MethodDelete:
		if id == "" {
			return Result{Status: http.StatusBadRequest, Body: Error("delete requires a record id")}
		}
		err := rt.svc.Delete(ctx, name, id)
		if errors.Is(err, ErrNotFound) {
			return notFound(name, id)
		}
		if err != nil {
			return rt.internal("delete", name, err)
		}
		return Result{Status: http.StatusOK, Body: OK(map[string]string{"deleted": id})}

	default:
		return methodNotAllowed(method, name)
	}
}

func (rt *Router) internal(op, name string, err error) Result {
	rt.logger.Error("row store operation failed", "op", op, "collection", name, "error", err)
	return Result{Status: http.StatusInternalServerError, Body: Error(op + " failed")}
}

func decodeRow(body []byte) (Row, *Result) {
	if len(body) == 0 {
		return nil, &Result{Status: http.StatusBadRequest, Body: Error("request body is required")}
	}
	var row Row
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, &Result{Status: http.StatusBadRequest, Body: Error("invalid JSON body")}
	}
	return row, nil
}

func parseSince(query url.Values) (int64, error) {
	s := query.Get("since")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func methodNotAllowed(method, resource string) Result {
	return Result{
		Status: http.StatusMethodNotAllowed,
		Body:   Error(method + " is not supported for " + resource),
	}
}

func notFound(name, id string) Result {
	return Result{Status: http.StatusNotFound, Body: Error(name + "/" + id + " not found")}
}

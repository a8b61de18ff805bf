// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler mounts the router on an HTTP mux. filesRoot, when non-empty, is
// served under /files/ so the directory blob adapter's URLs resolve.
func (rt *Router) Handler(filesRoot string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(corsMiddleware)

	if filesRoot != "" {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(filesRoot)))
		mux.Handle("/files/*", fileServer)
	}
	mux.HandleFunc("/*", rt.serveHTTP)
	return mux
}

func (rt *Router) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeResult(w, Result{Status: http.StatusBadRequest, Body: Error("failed to read request body")})
			return
		}
		body = b
	}

	result := rt.Route(r.Context(), r.Method, r.URL.Path, r.URL.Query(), body)
	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	_ = json.NewEncoder(w).Encode(result.Body)
}

// corsMiddleware adds permissive CORS headers to every response and
// answers OPTIONS preflights with a zero-length body. The deployment model
// is a single-owner backend called from a browser client on another
// origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

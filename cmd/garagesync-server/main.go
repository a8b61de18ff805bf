// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

// garagesync-server is the deployable backend: the request router over a
// row store (in-memory, SQLite or Postgres) plus blob storage for receipt
// images (local directory or MinIO).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SuperiorNetworks/vehicle-maintenance-manager/garagesync"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	port := getEnv("PORT", "8080")
	publicBaseURL := getEnv("PUBLIC_BASE_URL", "http://localhost:"+port)

	stores, err := buildStores(logger)
	if err != nil {
		return err
	}

	blobs, filesRoot, err := buildBlobStore(publicBaseURL, logger)
	if err != nil {
		return err
	}

	svc, err := garagesync.NewService(stores, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	router := garagesync.NewRouter(svc, blobs, logger)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router.Handler(filesRoot),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildStores selects the row store adapter from STORE_DRIVER:
// memory (default), sqlite (SQLITE_FILE) or postgres (DATABASE_URL).
func buildStores(logger *slog.Logger) (map[string]garagesync.RowStore, error) {
	driver := getEnv("STORE_DRIVER", "memory")
	stores := make(map[string]garagesync.RowStore)

	switch driver {
	case "memory":
		for _, c := range garagesync.Collections() {
			stores[c.Name] = garagesync.NewMemStore(c)
		}

	case "sqlite":
		path := getEnv("SQLITE_FILE", "garagesync.db")
		db, err := garagesync.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		for _, c := range garagesync.Collections() {
			store, err := garagesync.NewSQLiteStore(db, c)
			if err != nil {
				return nil, err
			}
			stores[c.Name] = store
		}

	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		for _, c := range garagesync.Collections() {
			store, err := garagesync.NewPGStore(ctx, pool, c)
			if err != nil {
				return nil, err
			}
			stores[c.Name] = store
		}

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	logger.Info("row store ready", "driver", driver)
	return stores, nil
}

// buildBlobStore selects the blob adapter from BLOB_DRIVER: dir (default,
// BLOB_DIR served under /files/) or minio (MINIO_* variables). Returns the
// directory to serve under /files/, empty when MinIO serves objects
// itself.
func buildBlobStore(publicBaseURL string, logger *slog.Logger) (garagesync.BlobStore, string, error) {
	driver := getEnv("BLOB_DRIVER", "dir")

	switch driver {
	case "dir":
		root := getEnv("BLOB_DIR", "blobs")
		store, err := garagesync.NewDirBlobStore(root, publicBaseURL)
		if err != nil {
			return nil, "", err
		}
		logger.Info("blob store ready", "driver", driver, "root", root)
		return store, store.FileHandlerRoot(), nil

	case "minio":
		cfg := garagesync.MinioConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("MINIO_USER", "minioadmin"),
			SecretAccessKey: getEnv("MINIO_PASSWORD", "minioadmin"),
			UseSSL:          os.Getenv("MINIO_USE_SSL") == "true",
			Bucket:          getEnv("MINIO_BUCKET", "garagesync-receipts"),
			PublicBaseURL:   os.Getenv("MINIO_PUBLIC_URL"),
		}
		store, err := garagesync.NewMinioBlobStore(context.Background(), cfg, logger)
		if err != nil {
			return nil, "", err
		}
		logger.Info("blob store ready", "driver", driver, "bucket", cfg.Bucket)
		return store, "", nil

	default:
		return nil, "", fmt.Errorf("unknown BLOB_DRIVER %q", driver)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

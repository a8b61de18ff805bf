// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection parameters for a MinIO (or any S3
// compatible) blob backend.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
	// PublicBaseURL is the externally reachable address objects are served
	// from, e.g. "https://blobs.example.com". Defaults to the endpoint.
	PublicBaseURL string
}

// MinioBlobStore implements BlobStore on a MinIO bucket.
type MinioBlobStore struct {
	client *minio.Client
	cfg    MinioConfig
	logger *slog.Logger
}

// NewMinioBlobStore connects to MinIO and ensures the bucket exists.
func NewMinioBlobStore(ctx context.Context, cfg MinioConfig, logger *slog.Logger) (*MinioBlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("created blob bucket", "bucket", cfg.Bucket)
	}

	if cfg.PublicBaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		cfg.PublicBaseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}
	return &MinioBlobStore{client: client, cfg: cfg, logger: logger}, nil
}

func (s *MinioBlobStore) Put(ctx context.Context, folder, filename, mimeType string, data []byte) (string, error) {
	objectKey := folder + "/" + filename
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", objectKey, err)
	}
	s.logger.Debug("blob uploaded", "bucket", s.cfg.Bucket, "object", objectKey, "bytes", len(data))
	return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, s.cfg.Bucket, objectKey), nil
}

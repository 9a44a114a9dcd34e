// Package gcs implements a Google Cloud Storage export store.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/stackql/stackql-deploy/pkg/exportstore"
)

func init() {
	exportstore.Register("gcs", NewStore)
}

// Store implements the export store interface for Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a GCS store. Credentials come from Application
// Default Credentials unless "credentials" (a file path) is configured;
// "endpoint" points the client at an emulator.
func NewStore(cfg map[string]string) (exportstore.Store, error) {
	bucket, ok := cfg["bucket"]
	if !ok || bucket == "" {
		return nil, fmt.Errorf("gcs export store requires 'bucket' configuration")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	if credentialsFile := cfg["credentials"]; credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	if endpoint := cfg["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) Type() string {
	return "gcs"
}

func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, exportstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, key, err)
	}

	return reader, nil
}

func (s *Store) Write(ctx context.Context, key string, data io.Reader) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := io.Copy(writer, data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", s.bucket, key, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for gs://%s/%s: %w", s.bucket, key, err)
	}

	return nil
}

// Package gcsstore is a checkpoint.Backend that keeps each checkpoint as an
// object in a Google Cloud Storage bucket.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dcshock/runpipe/checkpoint"
	"google.golang.org/api/option"
)

// Backend stores checkpoints under Prefix in Bucket.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// NewClient creates a storage client. If credentialsFile is empty, application
// default credentials are used.
func NewClient(ctx context.Context, bucket, prefix, credentialsFile string) (*Backend, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	b := New(client, bucket, prefix)
	b.owned = true
	return b, nil
}

// New wraps an existing client. Close does not close it.
func New(client *storage.Client, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

// Store returns a root checkpoint.Store over this backend.
func (b *Backend) Store(opts ...checkpoint.Option) *checkpoint.KV {
	return checkpoint.New(b, opts...)
}

// ObjectName returns the object name used for key. The key is appended to the
// prefix as is; object names are not cleaned.
func (b *Backend) ObjectName(key string) string {
	prefix := strings.TrimSuffix(b.prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (b *Backend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.ObjectName(key))
}

// Write implements checkpoint.Backend. The object is committed when the writer
// closes, so Write returns only after the upload is durable.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", b.bucket, b.ObjectName(key), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for gs://%s/%s: %w", b.bucket, b.ObjectName(key), err)
	}
	return nil
}

// Read implements checkpoint.Backend.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", b.bucket, b.ObjectName(key), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", b.bucket, b.ObjectName(key), err)
	}
	return data, nil
}

// Remove implements checkpoint.Backend.
func (b *Backend) Remove(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gs://%s/%s: %w", b.bucket, b.ObjectName(key), err)
	}
	return nil
}

// Close closes the client if NewClient created it.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

var _ checkpoint.Backend = (*Backend)(nil)

// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/meizi0715/bdt-v1.5/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "slotwatch/".
	Prefix string
}

// BlobStore writes snapshot objects to a configured GCS bucket.
type BlobStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *gcs.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads data to prefix+name.
func (s *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	writer := s.object(name).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}

// Get downloads the named object.
func (s *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("get %s: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("open reader for %s: %w", name, err)
	}
	defer reader.Close() //nolint:errcheck // read-only handle
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}

// List returns object names under the prefix with the prefix stripped.
func (s *BlobStore) List(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: s.prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named object.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	if err := s.object(name).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("delete %s: %w", name, storage.ErrNotFound)
		}
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

func (s *BlobStore) object(name string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + name)
}

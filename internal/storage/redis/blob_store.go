// Package redis keeps snapshot objects in Redis. Each object is a plain
// string key; an index sorted set lists the names so List needs no KEYS scan.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meizi0715/bdt-v1.5/internal/storage"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys, e.g. "slotwatch:".
	Prefix string
}

// BlobStore implements storage.Store on a go-redis client.
type BlobStore struct {
	client goredis.UniversalClient
	prefix string
}

// New dials nothing; the first command opens the connection.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string) *BlobStore {
	return &BlobStore{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (s *BlobStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// Put stores data and records the name in the index.
func (s *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key(name), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: 0, Member: name})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", name, err)
	}
	return nil
}

// Get returns the stored bytes.
func (s *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return data, nil
}

// List returns indexed names in lexical order. Equal scores make ZRANGE
// order by member.
func (s *BlobStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	return names, nil
}

// Delete removes the object and its index entry.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(name))
		pipe.ZRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", name, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete %s: %w", name, storage.ErrNotFound)
	}
	return nil
}

func (s *BlobStore) key(name string) string { return s.prefix + "snapshot:" + name }

func (s *BlobStore) indexKey() string { return s.prefix + "snapshots" }

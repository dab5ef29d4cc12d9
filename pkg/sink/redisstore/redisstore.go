// Package redisstore publishes finished tables to Redis as CSV documents
// under deterministic keys.
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tlcaputi/gtrends/pkg/merge"
	"github.com/tlcaputi/gtrends/pkg/sink"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "gtrends"

// ErrNotFound indicates no table is stored under a key.
var ErrNotFound = errors.New("table not found")

// Store is a sink.Sink backed by Redis.
type Store struct {
	redis  *redis.Client
	prefix string
}

var _ sink.Sink = (*Store)(nil)

// New creates a store. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix}, nil
}

// DataKey returns the Redis key holding the CSV body of key.
// Format: <prefix>:table:<name>:<granularity>
func (s *Store) DataKey(key sink.Key) string {
	return fmt.Sprintf("%s:table:%s:%s", s.prefix, key.Name, key.Granularity)
}

// MetaKey returns the Redis hash describing key.
func (s *Store) MetaKey(key sink.Key) string {
	return s.DataKey(key) + ":meta"
}

// IndexKey returns the set listing every stored table.
func (s *Store) IndexKey() string {
	return s.prefix + ":tables"
}

// Write stores table in a MULTI/EXEC transaction, replacing any previous
// version.
func (s *Store) Write(ctx context.Context, key sink.Key, table *merge.Table) error {
	if err := key.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sink.EncodeCSV(&buf, table); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.DataKey(key), buf.Bytes(), 0)
		pipe.HSet(ctx, s.MetaKey(key),
			"name", key.Name,
			"granularity", string(key.Granularity),
			"columns", len(table.Columns),
			"rows", len(table.Rows),
			"written_at", time.Now().UTC().Format(time.RFC3339),
		)
		pipe.SAdd(ctx, s.IndexKey(), key.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", key, err)
	}

	sink.TablesWritten.WithLabelValues("redis").Inc()
	return nil
}

// Read returns the CSV body stored for key.
func (s *Store) Read(ctx context.Context, key sink.Key) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.DataKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Close is a no-op; the caller owns the Redis client.
func (s *Store) Close() error {
	return nil
}

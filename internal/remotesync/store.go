// Package remotesync mirrors the local ledger to a remote document store.
package remotesync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DocumentStore holds one document per user made of named JSON fields.
type DocumentStore interface {
	// Merge writes the given fields, leaving other fields of the document untouched.
	Merge(ctx context.Context, userID string, fields map[string][]byte) error
	// Fetch returns every field of the document and whether it exists.
	Fetch(ctx context.Context, userID string) (map[string][]byte, bool, error)
}

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps each user document in a Redis hash; HSET gives field-level merge.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "arcade:user:"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

// Merge implements DocumentStore.
func (s *RedisStore) Merge(ctx context.Context, userID string, fields map[string][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return s.rdb.HSet(ctx, s.prefix+userID, values).Err()
}

// Fetch implements DocumentStore.
func (s *RedisStore) Fetch(ctx context.Context, userID string) (map[string][]byte, bool, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+userID).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = []byte(v)
	}
	return out, true, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// MemoryStore is an in-process DocumentStore.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]map[string][]byte{}}
}

// Merge implements DocumentStore.
func (m *MemoryStore) Merge(_ context.Context, userID string, fields map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[userID]
	if doc == nil {
		doc = map[string][]byte{}
		m.docs[userID] = doc
	}
	for k, v := range fields {
		doc[k] = append([]byte(nil), v...)
	}
	return nil
}

// Fetch implements DocumentStore.
func (m *MemoryStore) Fetch(_ context.Context, userID string) (map[string][]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string][]byte, len(doc))
	for k, v := range doc {
		out[k] = append([]byte(nil), v...)
	}
	return out, true, nil
}

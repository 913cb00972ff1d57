package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process document store.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string][]byte{}}
}

// Get returns a copy of the document stored under userID and key.
func (m *Memory) Get(_ context.Context, userID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.docs[userID][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Put replaces the document stored under userID and key.
func (m *Memory) Put(_ context.Context, userID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(userID, key, value)
	return nil
}

// Delete removes the document stored under userID and key.
func (m *Memory) Delete(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[userID], key)
	return nil
}

// Update applies fn to the current document under the store lock.
func (m *Memory) Update(_ context.Context, userID, key string, fn func(old []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var old []byte
	if v, ok := m.docs[userID][key]; ok {
		old = clone(v)
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	m.put(userID, key, next)
	return nil
}

// Append adds item to the JSON array under userID and key, keeping at most limit elements.
func (m *Memory) Append(ctx context.Context, userID, key string, item []byte, limit int) (int, error) {
	var n int
	err := m.Update(ctx, userID, key, func(old []byte) ([]byte, error) {
		next, length, err := AppendBounded(old, item, limit)
		n = length
		return next, err
	})
	return n, err
}

// Users lists users with stored documents.
func (m *Memory) Users(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.docs))
	for u, docs := range m.docs {
		if len(docs) > 0 {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *Memory) put(userID, key string, value []byte) {
	if _, ok := m.docs[userID]; !ok {
		m.docs[userID] = map[string][]byte{}
	}
	m.docs[userID][key] = clone(value)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

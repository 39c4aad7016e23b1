package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in process memory. Used by tests and local tooling.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore constructs a MemoryStore with the given public URL prefix.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: strings.TrimRight(baseURL, "/"), objects: map[string]memoryObject{}}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[cleanKey]; exists {
		return Object{}, conflictError(cleanKey, nil)
	}
	m.objects[cleanKey] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return Object{Key: cleanKey, URL: m.URL(cleanKey)}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[cleanKey]; !exists {
		return notFoundError(cleanKey, nil)
	}
	delete(m.objects, cleanKey)
	return nil
}

func (m *MemoryStore) URL(key string) string {
	return m.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (m *MemoryStore) KeyFromURL(rawURL string) (string, bool) {
	prefix := m.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, prefix), true
}

// Get returns a copy of the stored bytes.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys lists stored keys in no particular order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

var _ BlobStore = (*MemoryStore)(nil)

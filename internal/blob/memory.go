// In-memory blob store used for development and tests.
package blob

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	public      bool
	modified    time.Time
}

// MemoryStore implements Store with a process-local map. URLs are the
// "mem://" scheme plus the object path.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// Put stores a copy of data under path.
func (m *MemoryStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    time.Now().UTC(),
	}
	return "mem://" + path, nil
}

// Get returns a copy of the stored bytes or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[trimScheme(url)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

// Delete removes the object, reporting whether it existed.
func (m *MemoryStore) Delete(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := trimScheme(url)
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

// MakePublic flags the object as publicly readable.
func (m *MemoryStore) MakePublic(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := trimScheme(url)
	obj, ok := m.objects[key]
	if !ok {
		return ErrNotFound
	}
	obj.public = true
	m.objects[key] = obj
	return nil
}

// DeleteOlderThan removes objects under prefix modified before cutoff.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, prefix string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) && obj.modified.Before(cutoff) {
			delete(m.objects, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of stored objects (test helper).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func trimScheme(url string) string {
	return strings.TrimPrefix(url, "mem://")
}

package sharedprefs

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Value kinds, one per setter.
const (
	KindBool       = "bool"
	KindInt        = "int"
	KindDouble     = "double"
	KindString     = "string"
	KindStringList = "stringList"
)

// Store persists preferences. Values passed to Set are already normalized to
// bool, int64, float64, string or []string according to kind.
type Store interface {
	// GetAll returns the preferences whose keys start with prefix.
	GetAll(ctx context.Context, prefix string) (map[string]any, error)
	Set(ctx context.Context, key, kind string, value any) error
	Remove(ctx context.Context, key string) error
	// Clear removes the preferences whose keys start with prefix.
	Clear(ctx context.Context, prefix string) error
}

// MemoryStore is a Store that lives for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

func (s *MemoryStore) GetAll(_ context.Context, prefix string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range s.values {
		if strings.HasPrefix(k, prefix) {
			out[k] = copyValue(v)
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key, _ string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = copyValue(value)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			delete(s.values, k)
		}
	}
	return nil
}

// Keys returns the stored keys, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyValue(v any) any {
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return v
}

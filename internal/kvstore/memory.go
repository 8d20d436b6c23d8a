package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// MemoryKVStore implements core.KVStore with an in-process map.
// Expired entries are dropped lazily on access and during Set.
type MemoryKVStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	now     func() time.Time
	closed  bool
	maxKeys int
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryOption configures a MemoryKVStore.
type MemoryOption func(*MemoryKVStore)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryKVStore) {
		m.now = now
	}
}

// WithMaxKeys bounds the number of entries; expired entries are purged
// first and Set fails when the store is still full.
func WithMaxKeys(n int) MemoryOption {
	return func(m *MemoryKVStore) {
		m.maxKeys = n
	}
}

// NewMemoryKVStore creates an empty in-process store.
func NewMemoryKVStore(opts ...MemoryOption) *MemoryKVStore {
	m := &MemoryKVStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves a value by key from the store.
func (m *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}
	item, ok := m.items[key]
	if !ok || item.expired(m.now()) {
		return nil, notFound(key)
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a key-value pair with an optional TTL.
func (m *MemoryKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	return m.setLocked(key, value, ttl)
}

func (m *MemoryKVStore) setLocked(key string, value []byte, ttl time.Duration) error {
	now := m.now()
	if _, exists := m.items[key]; !exists && m.maxKeys > 0 && len(m.items) >= m.maxKeys {
		m.purgeLocked(now)
		if len(m.items) >= m.maxKeys {
			return fmt.Errorf("memory store full (%d keys)", m.maxKeys)
		}
	}

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryKVStore) purgeLocked(now time.Time) {
	for k, item := range m.items {
		if item.expired(now) {
			delete(m.items, k)
		}
	}
}

// Delete removes a key from the store.
func (m *MemoryKVStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	delete(m.items, key)
	return nil
}

// Exists checks if a key exists in the store.
func (m *MemoryKVStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errClosed
	}
	item, ok := m.items[key]
	return ok && !item.expired(m.now()), nil
}

// BatchSet stores multiple key-value pairs with a shared TTL.
func (m *MemoryKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	for key, value := range items {
		if err := m.setLocked(key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of live entries.
func (m *MemoryKVStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	n := 0
	for _, item := range m.items {
		if !item.expired(now) {
			n++
		}
	}
	return n
}

// Close drops every entry.
func (m *MemoryKVStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
	return nil
}

// MemoryKVStoreFactory implements the KVStoreFactory interface for the in-process store.
type MemoryKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *MemoryKVStoreFactory) Type() string {
	return "memory"
}

// Validate validates the memory-specific configuration.
func (f *MemoryKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "memory" {
		return fmt.Errorf("invalid type for memory factory: %s", config.Type)
	}
	return nil
}

// Create creates a new in-process KV store.
func (f *MemoryKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	return NewMemoryKVStore(), nil
}

// MemoryConfigValidator implements the ConfigValidator interface for the in-process store.
type MemoryConfigValidator struct{}

// Type returns the type identifier for this validator.
func (v *MemoryConfigValidator) Type() string {
	return "memory"
}

// Validate accepts any memory cache configuration; the store has no settings.
func (v *MemoryConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Cache.Type != "memory" {
		return fmt.Errorf("invalid type for memory validator: %s", config.Cache.Type)
	}
	return nil
}

func init() {
	RegisterFactory(&MemoryKVStoreFactory{})
	registry.RegisterValidator(&MemoryConfigValidator{})
}

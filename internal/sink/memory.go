package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// Memory keeps the last table published under each name.
type Memory struct {
	mu        sync.RWMutex
	tables    map[string]*core.Table
	publishes int
	closed    bool
}

// NewMemory creates an empty in-process sink.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*core.Table)}
}

// Publish implements core.TableSink. Tables are immutable, so no copy is taken.
func (m *Memory) Publish(ctx context.Context, t *core.Table) error {
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory sink is closed")
	}
	m.tables[t.Name()] = t
	m.publishes++
	return nil
}

// Table returns the last table published under name.
func (m *Memory) Table(name string) (*core.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	return t, ok
}

// Names returns the published table names in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publishes returns the number of successful Publish calls.
func (m *Memory) Publishes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishes
}

// Close implements core.TableSink.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryFactory struct{}

func (memoryFactory) Type() string { return "memory" }

func (memoryFactory) Create(registry.InternalSinkConfig, *zap.Logger) (core.TableSink, error) {
	return NewMemory(), nil
}

func init() {
	RegisterFactory(memoryFactory{})
}

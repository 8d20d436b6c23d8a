// Package sink publishes built tables to databases and message topics.
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

// SinkFactory is the Strategy interface for creating sinks.
type SinkFactory interface {
	// Create creates a sink from the sink section of the configuration.
	Create(config registry.InternalSinkConfig, logger *zap.Logger) (core.TableSink, error)

	// Type returns the type identifier for this factory (e.g., "sql", "kafka").
	Type() string
}

var (
	factoryRegistry = make(map[string]SinkFactory)
	registryMutex   sync.RWMutex
)

// RegisterFactory registers a sink factory.
// This is called automatically by each implementation's init() function.
func RegisterFactory(factory SinkFactory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := factoryRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("sink factory for type %q is already registered", factory.Type()))
	}
	factoryRegistry[factory.Type()] = factory
}

// Create creates a sink using the factory registered for config.Type.
func Create(config registry.InternalSinkConfig, logger *zap.Logger) (core.TableSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Type == "" {
		config.Type = "none"
	}

	registryMutex.RLock()
	factory, exists := factoryRegistry[config.Type]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported sink type: %s", config.Type)
	}
	return factory.Create(config, logger)
}

// GetRegisteredTypes returns the registered sink types in sorted order.
func GetRegisteredTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Discard is a sink that drops every table.
type Discard struct{}

// Publish implements core.TableSink.
func (Discard) Publish(context.Context, *core.Table) error { return nil }

// Close implements core.TableSink.
func (Discard) Close() error { return nil }

type discardFactory struct{}

func (discardFactory) Type() string { return "none" }

func (discardFactory) Create(registry.InternalSinkConfig, *zap.Logger) (core.TableSink, error) {
	return Discard{}, nil
}

func init() {
	RegisterFactory(discardFactory{})
}

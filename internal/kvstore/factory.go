package kvstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// KVStoreFactory is the Strategy interface for creating KV store implementations.
// Each backend (memory, Redis, DynamoDB) implements this interface to provide
// its own factory method.
type KVStoreFactory interface {
	// Create creates a new KV store instance based on the provided configuration.
	Create(config KVStoreConfig) (core.KVStore, error)

	// Type returns the type identifier for this factory (e.g., "redis", "dynamodb").
	Type() string

	// Validate validates the configuration specific to this KV store type.
	Validate(config KVStoreConfig) error
}

// KVStoreConfig represents the configuration needed to create a KV store.
type KVStoreConfig struct {
	Type         string
	Endpoints    []string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DynamoDB-specific fields
	Region          string
	TableName       string
	Endpoint        string // Optional, for LocalStack
	AccessKeyID     string // Optional, can use IAM role instead
	SecretAccessKey string // Optional, can use IAM role instead

	// Logger receives backend diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// ConfigFromCache converts the cache section of the application configuration.
func ConfigFromCache(cache registry.InternalCacheConfig, logger *zap.Logger) KVStoreConfig {
	return KVStoreConfig{
		Type:            cache.Type,
		Endpoints:       cache.RedisConfig.Endpoints,
		Password:        cache.RedisConfig.Password,
		DB:              cache.RedisConfig.DB,
		MaxRetries:      cache.MaxRetries,
		PoolSize:        cache.RedisConfig.PoolSize,
		MinIdleConns:    cache.RedisConfig.MinIdleConns,
		DialTimeout:     cache.DialTimeout,
		ReadTimeout:     cache.ReadTimeout,
		WriteTimeout:    cache.WriteTimeout,
		Region:          cache.DynamoDBConfig.Region,
		TableName:       cache.DynamoDBConfig.TableName,
		Endpoint:        cache.DynamoDBConfig.Endpoint,
		AccessKeyID:     cache.DynamoDBConfig.AccessKeyID,
		SecretAccessKey: cache.DynamoDBConfig.SecretAccessKey,
		Logger:          logger,
	}
}

func (c KVStoreConfig) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

var (
	// factoryRegistry stores all registered KV store factories.
	factoryRegistry = make(map[string]KVStoreFactory)

	// registryMutex protects the registries from concurrent access.
	registryMutex sync.RWMutex
)

// RegisterFactory registers a KV store factory.
// This is called automatically by each implementation's init() function.
func RegisterFactory(factory KVStoreFactory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := factoryRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}

	factoryRegistry[factory.Type()] = factory
}

// Create creates a KV store instance using the factory registered for config.Type.
func Create(config KVStoreConfig) (core.KVStore, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("kvstore type is required")
	}

	registryMutex.RLock()
	factory, exists := factoryRegistry[config.Type]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported KV store type: %s", config.Type)
	}

	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}

	return factory.Create(config)
}

// GetRegisteredTypes returns the registered KV store types in sorted order.
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

// IsTypeRegistered checks if a KV store type is registered.
func IsTypeRegistered(storeType string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	_, exists := factoryRegistry[storeType]
	return exists
}

// errClosed is returned by every operation on a closed store.
var errClosed = fmt.Errorf("KV store is closed")

// notFound wraps ErrKeyNotFound with the key for context.
func notFound(key string) error {
	return fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
}

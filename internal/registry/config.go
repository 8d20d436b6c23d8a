package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "VACCINESURVEY_"

// ConfigValidator is the Strategy interface for validating configuration.
// Each cache backend (memory, Redis, DynamoDB) provides its own validator for
// its backend-specific settings.
type ConfigValidator interface {
	// Validate validates the internal configuration for this cache type.
	// It should validate only the cache-specific configuration.
	Validate(config *InternalConfig) error

	// Type returns the type identifier for this validator (e.g., "redis", "dynamodb").
	Type() string
}

var (
	// validatorRegistry stores all registered config validators.
	validatorRegistry = make(map[string]ConfigValidator)

	// validatorRegistryMutex protects the validator registry from concurrent access.
	validatorRegistryMutex sync.RWMutex
)

// ValidationStrategyRegistry provides methods to register and retrieve config validators.
// This implements the Strategy pattern for configuration validation.
type ValidationStrategyRegistry struct{}

// RegisterValidator registers a config validator.
// This is called automatically by each implementation's init() function.
// Panics if validator is nil, type is empty, or type is already registered.
func (r *ValidationStrategyRegistry) Register(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}

	validatorRegistry[validator.Type()] = validator
}

// Get retrieves a validator by type.
// Returns the validator and true if found, nil and false otherwise.
func (r *ValidationStrategyRegistry) Get(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// RegisterValidator is a convenience function to register a validator using the default registry.
// This is the preferred way to register validators from init() functions.
func RegisterValidator(validator ConfigValidator) {
	defaultValidationRegistry.Register(validator)
}

// GetValidator is a convenience function to retrieve a validator by type using the default registry.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	return defaultValidationRegistry.Get(validatorType)
}

// defaultValidationRegistry is the default instance of ValidationStrategyRegistry.
var defaultValidationRegistry = &ValidationStrategyRegistry{}

var (
	supportedSinks      = []string{"none", "memory", "sql", "kafka"}
	supportedSQLDrivers = []string{"mysql", "postgres", "sqlite"}
)

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	mu     sync.RWMutex
	config *InternalConfig
}

// NewConfigManager creates a new configuration manager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultInternalConfig(),
	}
}

// DefaultInternalConfig returns a configuration with sensible defaults.
func DefaultInternalConfig() *InternalConfig {
	return &InternalConfig{
		Server: InternalServerConfig{
			URL:       "http://127.0.0.1:8001",
			Schema:    "sample-vaccinesurvey",
			Section:   "sample",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Burst:     5,
		},
		Cache: InternalCacheConfig{
			Type:      "memory",
			TTL:       1 * time.Hour,
			Namespace: "vaccinesurvey",
			RedisConfig: InternalRedisConfig{
				Endpoints:    []string{"localhost:6379"},
				DB:           0,
				PoolSize:     10,
				MinIdleConns: 2,
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Sink: InternalSinkConfig{
			Type: "none",
			SQL: InternalSQLConfig{
				Driver:          "sqlite",
				Table:           "vaccine_survey",
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Kafka: InternalKafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "vaccinesurvey-samples",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				RequiredAcks:    -1,      // All replicas
				MaxMessageBytes: 1000000, // 1MB
			},
		},
		Schedule: InternalScheduleConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data. Unset keys keep their defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromJSON loads configuration from JSON data. Durations are given in nanoseconds.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := gojson.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromEnv overlays environment variables on the current configuration.
// Environment variables follow the pattern: VACCINESURVEY_<SECTION>_<KEY>
// Examples:
//   - VACCINESURVEY_SERVER_URL=https://app.genialis.com
//   - VACCINESURVEY_SERVER_USERNAME=analyst
//   - VACCINESURVEY_CACHE_TYPE=redis
//   - VACCINESURVEY_CACHE_ENDPOINTS=localhost:6379,localhost:6380
//   - VACCINESURVEY_SINK_TYPE=sql
//   - VACCINESURVEY_SCHEDULE_REFRESH=@every 15m
func (cm *ConfigManager) LoadFromEnv() error {
	return cm.loadFromLookup(os.LookupEnv)
}

func (cm *ConfigManager) loadFromLookup(lookup func(string) (string, bool)) error {
	config := cm.GetConfig()

	get := func(key string) (string, bool) {
		val, ok := lookup(EnvPrefix + key)
		if !ok || val == "" {
			return "", false
		}
		return val, true
	}
	str := func(key string, dst *string) {
		if val, ok := get(key); ok {
			*dst = val
		}
	}
	list := func(key string, dst *[]string) {
		if val, ok := get(key); ok {
			*dst = strings.Split(val, ",")
		}
	}
	num := func(key string, dst *int) error {
		if val, ok := get(key); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if val, ok := get(key); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
		return nil
	}

	// Server configuration
	str("SERVER_URL", &config.Server.URL)
	str("SERVER_USERNAME", &config.Server.Username)
	str("SERVER_PASSWORD", &config.Server.Password)
	str("SERVER_SCHEMA", &config.Server.Schema)
	str("SERVER_SCHEMA_FILE", &config.Server.SchemaFile)
	str("SERVER_SECTION", &config.Server.Section)
	if val, ok := get("SERVER_RATE_LIMIT"); ok {
		rps, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%sSERVER_RATE_LIMIT: %w", EnvPrefix, err)
		}
		config.Server.RateLimit = rps
	}

	// Cache configuration
	str("CACHE_TYPE", &config.Cache.Type)
	str("CACHE_NAMESPACE", &config.Cache.Namespace)
	list("CACHE_ENDPOINTS", &config.Cache.RedisConfig.Endpoints)
	str("CACHE_PASSWORD", &config.Cache.RedisConfig.Password)
	str("CACHE_REGION", &config.Cache.DynamoDBConfig.Region)
	str("CACHE_TABLE_NAME", &config.Cache.DynamoDBConfig.TableName)
	str("CACHE_ENDPOINT", &config.Cache.DynamoDBConfig.Endpoint)

	// Sink configuration
	str("SINK_TYPE", &config.Sink.Type)
	str("SINK_DRIVER", &config.Sink.SQL.Driver)
	str("SINK_DSN", &config.Sink.SQL.DSN)
	str("SINK_TABLE", &config.Sink.SQL.Table)
	list("SINK_BROKERS", &config.Sink.Kafka.Brokers)
	str("SINK_TOPIC", &config.Sink.Kafka.Topic)

	// Schedule configuration
	str("SCHEDULE_REFRESH", &config.Schedule.Refresh)
	if val, ok := get("SCHEDULE_WATCH_CONFIG"); ok {
		config.Schedule.WatchConfig = val == "true" || val == "1"
	}

	for _, parse := range []func() error{
		func() error { return dur("SERVER_TIMEOUT", &config.Server.Timeout) },
		func() error { return num("SERVER_BURST", &config.Server.Burst) },
		func() error { return dur("CACHE_TTL", &config.Cache.TTL) },
		func() error { return num("CACHE_DB", &config.Cache.RedisConfig.DB) },
		func() error { return num("CACHE_POOL_SIZE", &config.Cache.RedisConfig.PoolSize) },
		func() error { return num("CACHE_MAX_RETRIES", &config.Cache.MaxRetries) },
		func() error { return num("SINK_MAX_OPEN_CONNS", &config.Sink.SQL.MaxOpenConns) },
		func() error { return dur("SCHEDULE_DEBOUNCE", &config.Schedule.Debounce) },
	} {
		if err := parse(); err != nil {
			return err
		}
	}

	return cm.apply(config)
}

// SetConfig validates and installs a configuration built in code.
func (cm *ConfigManager) SetConfig(config *InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return cm.apply(cloneConfig(config))
}

// GetConfig returns a copy of the current internal configuration.
func (cm *ConfigManager) GetConfig() *InternalConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cloneConfig(cm.config)
}

func (cm *ConfigManager) apply(config *InternalConfig) error {
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return nil
}

func cloneConfig(c *InternalConfig) *InternalConfig {
	out := *c
	out.Cache.RedisConfig.Endpoints = append([]string(nil), c.Cache.RedisConfig.Endpoints...)
	out.Sink.Kafka.Brokers = append([]string(nil), c.Sink.Kafka.Brokers...)
	return &out
}

// validateConfig validates the configuration and returns an error if invalid.
// Cache validation is delegated to the validator registered for the cache type.
func (cm *ConfigManager) validateConfig(config *InternalConfig) error {
	// Server configuration
	if config.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(config.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url must be an absolute URL, got: %q", config.Server.URL)
	}
	if config.Server.Schema == "" {
		return fmt.Errorf("server.schema is required")
	}
	if config.Server.Section == "" {
		return fmt.Errorf("server.section is required")
	}
	if config.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be greater than 0")
	}
	if config.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be greater than 0")
	}
	if config.Server.Burst <= 0 {
		return fmt.Errorf("server.burst must be greater than 0")
	}

	// Cache configuration
	if config.Cache.Type == "" {
		return fmt.Errorf("cache.type is required")
	}
	if config.Cache.Type != "none" {
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be greater than 0")
		}

		validator, exists := GetValidator(config.Cache.Type)
		if !exists {
			return fmt.Errorf("unsupported cache type: %s", config.Cache.Type)
		}
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("cache validation failed: %w", err)
		}
	}

	// Sink configuration
	if !contains(supportedSinks, config.Sink.Type) {
		return fmt.Errorf("sink.type must be one of %v, got: %q", supportedSinks, config.Sink.Type)
	}
	switch config.Sink.Type {
	case "sql":
		sqlConfig := config.Sink.SQL
		if !contains(supportedSQLDrivers, sqlConfig.Driver) {
			return fmt.Errorf("sink.sql.driver must be one of %v, got: %q", supportedSQLDrivers, sqlConfig.Driver)
		}
		if sqlConfig.DSN == "" && sqlConfig.Database == "" {
			return fmt.Errorf("sink.sql.dsn or sink.sql.database is required")
		}
		if sqlConfig.DSN == "" && sqlConfig.Driver != "sqlite" && sqlConfig.Host == "" {
			return fmt.Errorf("sink.sql.host is required for %s", sqlConfig.Driver)
		}
		if sqlConfig.Port < 0 || sqlConfig.Port > 65535 {
			return fmt.Errorf("sink.sql.port must be between 1 and 65535")
		}
		if sqlConfig.Table == "" {
			return fmt.Errorf("sink.sql.table is required")
		}
		if sqlConfig.MaxOpenConns <= 0 {
			return fmt.Errorf("sink.sql.max_open_conns must be greater than 0")
		}
	case "kafka":
		if len(config.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("sink.kafka.brokers is required when sink.type is 'kafka'")
		}
		if config.Sink.Kafka.Topic == "" {
			return fmt.Errorf("sink.kafka.topic is required when sink.type is 'kafka'")
		}
	}

	// Schedule configuration
	if config.Schedule.Refresh != "" {
		if _, err := cron.ParseStandard(config.Schedule.Refresh); err != nil {
			return fmt.Errorf("schedule.refresh is not a valid cron expression: %w", err)
		}
	}
	if config.Schedule.WatchConfig && config.Schedule.Debounce <= 0 {
		return fmt.Errorf("schedule.debounce must be greater than 0 when watch_config is set")
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

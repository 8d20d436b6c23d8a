package vaccinesurvey

import (
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// Config represents the root configuration of a vaccine survey client.
type Config = registry.InternalConfig

// ServerConfig describes the Resolwe server and the account used to read it.
type ServerConfig = registry.InternalServerConfig

// CacheConfig selects the response cache backend ("memory", "redis", "dynamodb" or "none").
type CacheConfig = registry.InternalCacheConfig

// RedisConfig contains Redis cache settings.
type RedisConfig = registry.InternalRedisConfig

// DynamoDBConfig contains DynamoDB cache settings.
type DynamoDBConfig = registry.InternalDynamoDBConfig

// SinkConfig selects where loaded tables are published ("none", "memory", "sql" or "kafka").
type SinkConfig = registry.InternalSinkConfig

// SQLConfig contains SQL sink settings.
type SQLConfig = registry.InternalSQLConfig

// KafkaConfig contains Kafka sink settings.
type KafkaConfig = registry.InternalKafkaConfig

// ScheduleConfig controls periodic refreshes and config file watching.
type ScheduleConfig = registry.InternalScheduleConfig

// DefaultConfig returns a configuration pointing at a local server with an
// in-memory response cache and no sink.
func DefaultConfig() *Config {
	return registry.DefaultInternalConfig()
}

// LoadConfig reads a YAML or JSON file, when path is non-empty, and overlays
// VACCINESURVEY_* environment variables. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cm := registry.NewConfigManager()
	if path != "" {
		if err := cm.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cm.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}

package registry

import (
	"time"
)

// InternalConfig represents the internal configuration structure.
// The public package re-exports it under shorter names.
type InternalConfig struct {
	Server   InternalServerConfig   `yaml:"server" json:"server"`
	Cache    InternalCacheConfig    `yaml:"cache" json:"cache"`
	Sink     InternalSinkConfig     `yaml:"sink" json:"sink"`
	Schedule InternalScheduleConfig `yaml:"schedule" json:"schedule"`
}

// InternalServerConfig describes the Resolwe server and the account used to read it.
type InternalServerConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Schema is the descriptor schema slug used to filter samples and pick the table schema.
	Schema string `yaml:"schema" json:"schema"`

	// SchemaFile optionally overrides the built-in schema with a YAML or JSON definition.
	SchemaFile string `yaml:"schema_file,omitempty" json:"schema_file,omitempty"`

	// Section is the descriptor section holding the sample attributes.
	Section string `yaml:"section" json:"section"`

	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second
	Burst     int           `yaml:"burst" json:"burst"`
}

// InternalCacheConfig contains configuration for the response cache.
// Supports multiple backends (memory, Redis, DynamoDB) through a plugin-based architecture.
type InternalCacheConfig struct {
	Type           string                 `yaml:"type" json:"type"`
	TTL            time.Duration          `yaml:"ttl" json:"ttl"`
	Namespace      string                 `yaml:"namespace" json:"namespace"`
	RedisConfig    InternalRedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig InternalDynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`
	MaxRetries     int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout    time.Duration          `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration          `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration          `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// InternalRedisConfig contains Redis-specific configuration.
type InternalRedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int      `yaml:"db,omitempty" json:"db,omitempty"`
	PoolSize     int      `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
	MinIdleConns int      `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`
}

// InternalDynamoDBConfig contains DynamoDB-specific configuration.
type InternalDynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// InternalSinkConfig selects where built tables are published.
type InternalSinkConfig struct {
	Type  string              `yaml:"type" json:"type"`
	SQL   InternalSQLConfig   `yaml:"sql,omitempty" json:"sql,omitempty"`
	Kafka InternalKafkaConfig `yaml:"kafka,omitempty" json:"kafka,omitempty"`
}

// InternalSQLConfig contains configuration for the SQL sink.
// DSN takes precedence over the individual connection fields.
type InternalSQLConfig struct {
	Driver          string        `yaml:"driver" json:"driver"` // mysql, postgres or sqlite
	DSN             string        `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Host            string        `yaml:"host,omitempty" json:"host,omitempty"`
	Port            int           `yaml:"port,omitempty" json:"port,omitempty"`
	Database        string        `yaml:"database,omitempty" json:"database,omitempty"`
	Username        string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string        `yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode         string        `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`
	Table           string        `yaml:"table,omitempty" json:"table,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`
}

// InternalKafkaConfig contains Kafka-specific configuration.
type InternalKafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
}

// InternalScheduleConfig controls background refreshes.
type InternalScheduleConfig struct {
	// Refresh is a cron expression; empty disables periodic reloads.
	Refresh string `yaml:"refresh,omitempty" json:"refresh,omitempty"`

	// WatchConfig reloads the configuration file when it changes.
	WatchConfig bool `yaml:"watch_config" json:"watch_config"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

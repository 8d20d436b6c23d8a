// Package vaccinesurvey imports vaccine survey samples from a Resolwe server
// as typed tables.
//
// Typical usage:
//
//	cfg := vaccinesurvey.DefaultConfig()
//	client, _ := vaccinesurvey.NewClient(cfg)
//	defer client.Close()
//
//	client.Connect(ctx, "analyst", "secret")
//	table, _ := client.LoadTable(ctx)
//	client.Publish(ctx, table)
package vaccinesurvey

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/client"
	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
	"github.com/rzpsarthak13/vaccinesurvey/internal/resolwe"
	"github.com/rzpsarthak13/vaccinesurvey/internal/table"
)

type (
	// Table is an immutable typed table built from sample records.
	Table = core.Table

	// Column is a typed table column.
	Column = core.Column

	// Value is a single table cell.
	Value = core.Value

	// Schema describes how records map to columns.
	Schema = core.Schema

	// RawRecord is one sample descriptor section as an untyped mapping.
	RawRecord = core.RawRecord

	// Sample is one sample as listed by the server.
	Sample = resolwe.Sample

	// TableSink receives loaded tables.
	TableSink = core.TableSink

	// KVStore backs the response cache.
	KVStore = core.KVStore
)

var (
	// ErrInvalidCredentials is matched by login failures caused by a rejected account.
	ErrInvalidCredentials = resolwe.ErrInvalidCredentials

	// ErrServerUnreachable is matched by failures to reach the server at all.
	ErrServerUnreachable = resolwe.ErrServerUnreachable

	// ErrMalformedTemporalValue is matched by builds aborted on an unparseable date.
	ErrMalformedTemporalValue = table.ErrMalformedTemporalValue

	// ErrClientClosed is returned by a closed client.
	ErrClientClosed = client.ErrClientClosed
)

// Client is the main interface for importing samples.
type Client interface {
	// Connect logs in to the server. The session is kept for later calls.
	Connect(ctx context.Context, username, password string) error

	// Samples lists the samples of the configured descriptor schema.
	Samples(ctx context.Context) ([]Sample, error)

	// LoadTable fetches the samples and converts them into a table.
	LoadTable(ctx context.Context) (*Table, error)

	// Publish sends a table to the configured sink.
	Publish(ctx context.Context, t *Table) error

	// Schema returns the schema tables are built with.
	Schema() *Schema

	// Close releases the cache and sink connections.
	Close() error
}

// Option configures a Client.
type Option func(*client.Options)

// WithLogger sets the logger used by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *client.Options) {
		o.Logger = logger
	}
}

// WithTransport sets the round tripper used below the response cache.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *client.Options) {
		o.Transport = rt
	}
}

// WithKVStore replaces the cache store built from the configuration.
func WithKVStore(store KVStore) Option {
	return func(o *client.Options) {
		o.KVStore = store
	}
}

// WithSink replaces the sink built from the configuration.
func WithSink(s TableSink) Option {
	return func(o *client.Options) {
		o.Sink = s
	}
}

// WithSchema replaces the schema resolved from the configuration.
func WithSchema(s *Schema) Option {
	return func(o *client.Options) {
		o.Schema = s
	}
}

// clientWrapper wraps the internal client implementation to provide the public Client interface.
type clientWrapper struct {
	impl *client.ClientImpl
}

// NewClient validates config and creates a client. Nothing is sent to the
// server until Connect is called.
func NewClient(config *Config, opts ...Option) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	configMgr := registry.NewConfigManager()
	if err := configMgr.SetConfig(config); err != nil {
		return nil, err
	}

	var options client.Options
	for _, opt := range opts {
		opt(&options)
	}

	impl, err := client.NewClientImpl(configMgr, options)
	if err != nil {
		return nil, err
	}
	return &clientWrapper{impl: impl}, nil
}

func (cw *clientWrapper) Connect(ctx context.Context, username, password string) error {
	return cw.impl.Connect(ctx, username, password)
}

func (cw *clientWrapper) Samples(ctx context.Context) ([]Sample, error) {
	return cw.impl.Samples(ctx)
}

func (cw *clientWrapper) LoadTable(ctx context.Context) (*Table, error) {
	return cw.impl.LoadTable(ctx)
}

func (cw *clientWrapper) Publish(ctx context.Context, t *Table) error {
	return cw.impl.Publish(ctx, t)
}

func (cw *clientWrapper) Schema() *Schema {
	return cw.impl.Schema()
}

func (cw *clientWrapper) Close() error {
	return cw.impl.Close()
}

// CacheStats returns the response cache hit and miss counters of c, which
// must have been created by NewClient.
func CacheStats(c Client) (hits, misses int64) {
	if cw, ok := c.(*clientWrapper); ok {
		return cw.impl.CacheStats()
	}
	return 0, 0
}

// Package client wires the configured cache, Resolwe client, schema, table
// builder and sink into one object.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/httpcache"
	"github.com/rzpsarthak13/vaccinesurvey/internal/kvstore"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
	"github.com/rzpsarthak13/vaccinesurvey/internal/resolwe"
	"github.com/rzpsarthak13/vaccinesurvey/internal/schema"
	"github.com/rzpsarthak13/vaccinesurvey/internal/sink"
	"github.com/rzpsarthak13/vaccinesurvey/internal/table"
)

// ErrClientClosed is returned by every operation after Close.
var ErrClientClosed = errors.New("client is closed")

// Options overrides parts of the wiring, mostly for embedding and tests.
type Options struct {
	Logger *zap.Logger

	// Transport is the network round tripper below the response cache.
	Transport http.RoundTripper

	// KVStore replaces the store built from the cache config. The caller keeps
	// ownership and closes it.
	KVStore core.KVStore

	// Sink replaces the sink built from the sink config. The caller keeps
	// ownership and closes it.
	Sink core.TableSink

	// Schema replaces the schema resolved from the server config.
	Schema *core.Schema
}

// ClientImpl is the default implementation behind the public client.
type ClientImpl struct {
	mu        sync.RWMutex
	configMgr *registry.ConfigManager
	kvStore   core.KVStore
	cache     *httpcache.Transport
	resolwe   *resolwe.Client
	schema    *core.Schema
	builder   *table.Builder
	sink      core.TableSink
	logger    *zap.Logger
	closed    bool

	ownsStore bool
	ownsSink  bool
}

// NewClientImpl builds every collaborator from the current configuration of configMgr.
func NewClientImpl(configMgr *registry.ConfigManager, opts Options) (*ClientImpl, error) {
	if configMgr == nil {
		return nil, fmt.Errorf("config manager cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &ClientImpl{
		configMgr: configMgr,
		logger:    logger,
	}
	if err := c.initialize(opts); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return c, nil
}

func (c *ClientImpl) initialize(opts Options) error {
	config := c.configMgr.GetConfig()

	s := opts.Schema
	if s == nil {
		var err error
		if s, err = resolveSchema(config.Server); err != nil {
			return err
		}
	}
	builder, err := table.NewBuilder(s, table.WithLogger(c.logger))
	if err != nil {
		return fmt.Errorf("failed to create table builder: %w", err)
	}
	c.schema = s
	c.builder = builder

	var transport http.RoundTripper = opts.Transport
	if config.Cache.Type != "none" {
		store := opts.KVStore
		if store == nil {
			store, err = kvstore.Create(kvstore.ConfigFromCache(config.Cache, c.logger))
			if err != nil {
				return fmt.Errorf("failed to create KV store: %w", err)
			}
			c.ownsStore = true
		}
		c.kvStore = store

		cacheOpts := []httpcache.Option{
			httpcache.WithTTL(config.Cache.TTL),
			httpcache.WithNamespace(config.Cache.Namespace),
			httpcache.WithLogger(c.logger),
		}
		if opts.Transport != nil {
			cacheOpts = append(cacheOpts, httpcache.WithBase(opts.Transport))
		}
		c.cache = httpcache.NewTransport(store, cacheOpts...)
		transport = c.cache
	}

	rc, err := resolwe.New(resolwe.Config{
		URL:       config.Server.URL,
		Schema:    config.Server.Schema,
		Section:   config.Server.Section,
		Timeout:   config.Server.Timeout,
		RateLimit: config.Server.RateLimit,
		Burst:     config.Server.Burst,
	}, resolwe.WithTransport(transport), resolwe.WithLogger(c.logger))
	if err != nil {
		return err
	}
	c.resolwe = rc

	if opts.Sink != nil {
		c.sink = opts.Sink
		return nil
	}
	if c.sink, err = sink.Create(config.Sink, c.logger); err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	c.ownsSink = true
	return nil
}

// resolveSchema loads the schema file when one is configured and falls back
// to the registered schema named after the descriptor slug.
func resolveSchema(server registry.InternalServerConfig) (*core.Schema, error) {
	if server.SchemaFile != "" {
		s, err := schema.LoadFile(server.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema file: %w", err)
		}
		return s, nil
	}
	s, err := schema.Get(server.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return s, nil
}

// Connect logs in to the server.
func (c *ClientImpl) Connect(ctx context.Context, username, password string) error {
	rc, err := c.source()
	if err != nil {
		return err
	}
	return rc.Login(ctx, username, password)
}

// Samples lists the samples of the configured descriptor schema.
func (c *ClientImpl) Samples(ctx context.Context) ([]resolwe.Sample, error) {
	rc, err := c.source()
	if err != nil {
		return nil, err
	}
	return rc.Samples(ctx)
}

// LoadTable fetches the sample records and builds a table from them.
func (c *ClientImpl) LoadTable(ctx context.Context) (*core.Table, error) {
	rc, err := c.source()
	if err != nil {
		return nil, err
	}
	records, err := rc.Records(ctx)
	if err != nil {
		return nil, err
	}
	t, err := c.builder.Build(records)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("table built",
		zap.String("schema", t.Name()),
		zap.Int("rows", t.Len()),
		zap.Int("diagnostics", len(t.Diagnostics())))
	return t, nil
}

// Publish sends t to the configured sink.
func (c *ClientImpl) Publish(ctx context.Context, t *core.Table) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.sink.Publish(ctx, t)
}

// Schema returns the schema tables are built with.
func (c *ClientImpl) Schema() *core.Schema {
	return c.schema
}

// Config returns a copy of the configuration the client was built from.
func (c *ClientImpl) Config() *registry.InternalConfig {
	return c.configMgr.GetConfig()
}

// CacheStats returns the response cache hit and miss counters.
func (c *ClientImpl) CacheStats() (hits, misses int64) {
	if c.cache == nil {
		return 0, 0
	}
	return c.cache.Stats()
}

func (c *ClientImpl) source() (*resolwe.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.resolwe, nil
}

// Close releases the sink and KV store connections the client created.
func (c *ClientImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.sink != nil && c.ownsSink {
		if err := c.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sink: %w", err))
		}
	}
	if c.kvStore != nil && c.ownsStore {
		if err := c.kvStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close KV store: %w", err))
		}
	}
	return errors.Join(errs...)
}

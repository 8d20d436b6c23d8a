// Package httpcache caches successful GET responses in a KV store.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// DefaultTTL is the expiry of cached responses.
const DefaultTTL = time.Hour

// HeaderFromCache is set to "1" on responses served from the store.
const HeaderFromCache = "X-From-Cache"

// Transport is an http.RoundTripper that serves repeated GET requests from a
// core.KVStore. Entries are keyed by URL and by a hash of the caller's
// identity, so different accounts never share a response. Concurrent misses
// for the same key are collapsed into one upstream request.
type Transport struct {
	base     http.RoundTripper
	store    core.KVStore
	ttl      time.Duration
	keys     *KeyBuilder
	identity func(*http.Request) string
	logger   *zap.Logger
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the transport used for upstream requests.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithTTL sets how long responses stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(t *Transport) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithNamespace prefixes every cache key.
func WithNamespace(namespace string) Option {
	return func(t *Transport) {
		t.keys = NewKeyBuilder(namespace)
	}
}

// WithIdentity overrides how the caller identity is derived from a request.
func WithIdentity(fn func(*http.Request) string) Option {
	return func(t *Transport) {
		if fn != nil {
			t.identity = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger.Named("httpcache")
		}
	}
}

// NewTransport creates a caching transport over store.
func NewTransport(store core.KVStore, opts ...Option) *Transport {
	t := &Transport{
		base:     http.DefaultTransport,
		store:    store,
		ttl:      DefaultTTL,
		keys:     NewKeyBuilder(""),
		identity: RequestIdentity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// entry is the stored form of a response.
type entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func (e *entry) response(req *http.Request, fromCache bool) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if fromCache {
		header.Set(HeaderFromCache, "1")
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

type result struct {
	entry     *entry
	fromCache bool
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Header.Get("Range") != "" {
		return t.base.RoundTrip(req)
	}

	key := t.keys.BuildKey(req.Method, req.URL.String(), t.identity(req))

	// The shared fetch ignores cancellation of the caller that started it but
	// keeps its deadline. Each caller stops waiting when its own context ends.
	ch := t.group.DoChan(key, func() (any, error) {
		ctx := context.WithoutCancel(req.Context())
		if deadline, ok := req.Context().Deadline(); ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
		}
		shared := req.Clone(ctx)
		if e, ok := t.lookup(shared, key); ok {
			return result{entry: e, fromCache: true}, nil
		}
		e, err := t.fetch(shared, key)
		if err != nil {
			return nil, err
		}
		return result{entry: e}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	r := res.Val.(result)
	if r.fromCache {
		t.hits.Add(1)
	} else {
		t.misses.Add(1)
	}
	return r.entry.response(req, r.fromCache), nil
}

func (t *Transport) lookup(req *http.Request, key string) (*entry, bool) {
	data, err := t.store.Get(req.Context(), key)
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			t.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var e entry
	if err := gojson.Unmarshal(data, &e); err != nil {
		t.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	t.logger.Debug("cache hit", zap.String("url", req.URL.Redacted()))
	return &e, true
}

func (t *Transport) fetch(req *http.Request, key string) (*entry, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	e := &entry{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if resp.StatusCode != http.StatusOK {
		return e, nil
	}

	// Cookies are per caller and must not be replayed to others.
	e.Header.Del("Set-Cookie")

	data, err := gojson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := t.store.Set(req.Context(), key, data, t.ttl); err != nil {
		t.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	} else {
		t.logger.Debug("cached response", zap.String("url", req.URL.Redacted()), zap.Duration("ttl", t.ttl))
	}
	return e, nil
}

// Stats returns the number of responses served from the store and from upstream.
func (t *Transport) Stats() (hits, misses int64) {
	return t.hits.Load(), t.misses.Load()
}

// RequestIdentity derives the caller identity from the Authorization header
// and the request cookies. Cookie order does not matter.
func RequestIdentity(req *http.Request) string {
	cookies := req.Cookies()
	parts := make([]string, 0, len(cookies)+1)
	if auth := req.Header.Get("Authorization"); auth != "" {
		parts = append(parts, "authorization="+auth)
	}
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// KeyBuilder builds cache keys in the format: {namespace}:{method}:{url}:{identity hash}
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a new key builder.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// BuildKey constructs a cache key. The identity is hashed so credentials never appear in keys.
func (kb *KeyBuilder) BuildKey(method, url, identity string) string {
	sum := sha256.Sum256([]byte(identity))
	hash := hex.EncodeToString(sum[:8])
	if kb.namespace != "" {
		return fmt.Sprintf("%s:%s:%s:%s", kb.namespace, method, url, hash)
	}
	return fmt.Sprintf("%s:%s:%s", method, url, hash)
}

// Package resolwe is a minimal client for the Resolwe sample-management REST API.
package resolwe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

const (
	loginPath  = "/rest-auth/login/"
	samplePath = "/api/sample"

	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"

	maxErrorBody = 512
)

// Config holds the connection settings of a Client.
type Config struct {
	// URL is the server root, e.g. http://127.0.0.1:8001.
	URL string

	// Schema is the descriptor schema slug samples are filtered by.
	Schema string

	// Section is the descriptor section returned by Records.
	Section string

	// PageSize requests paginated listings when greater than zero.
	PageSize int

	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// Client talks to one Resolwe server with one account. Sessions are kept in
// a cookie jar. A Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.RWMutex
	username string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the round tripper used for every request, e.g. a caching transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.http.Transport = rt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("resolwe")
		}
	}
}

// New creates a client. A URL that cannot be parsed is reported as a *ServerError.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("invalid URL %q", cfg.URL)
		}
		return nil, &ServerError{URL: cfg.URL, Err: err}
	}

	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	if cfg.Section == "" {
		cfg.Section = DefaultSection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		cfg:     cfg,
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the server root.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// Username returns the account of the last successful login.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Login authenticates and stores the session cookie. A rejected login returns
// a *CredentialsError; an unreachable server returns a *ServerError.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(loginPath, nil),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		c.logger.Info("login rejected", zap.String("username", username))
		return &CredentialsError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("login failed: %w", statusError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.mu.Lock()
	c.username = username
	c.mu.Unlock()

	c.logger.Info("logged in", zap.String("username", username), zap.String("url", c.URL()))
	return nil
}

// Samples lists the samples whose descriptor schema matches the configured slug.
// Both a bare JSON list and a paginated {count, next, results} envelope are accepted.
func (c *Client) Samples(ctx context.Context) ([]Sample, error) {
	query := url.Values{}
	query.Set("descriptor_schema__slug", c.cfg.Schema)
	if c.cfg.PageSize > 0 {
		query.Set("limit", strconv.Itoa(c.cfg.PageSize))
		query.Set("offset", "0")
	}

	var samples []Sample
	visited := make(map[string]bool)
	next := c.endpoint(samplePath, query)
	for next != "" {
		if visited[next] {
			return nil, fmt.Errorf("pagination loop at %s", next)
		}
		visited[next] = true
		batch, following, err := c.samplePage(ctx, next)
		if err != nil {
			return nil, err
		}
		samples = append(samples, batch...)
		next = following
	}

	c.logger.Debug("samples listed", zap.String("schema", c.cfg.Schema), zap.Int("count", len(samples)))
	return samples, nil
}

// Records returns the configured descriptor section of every sample.
func (c *Client) Records(ctx context.Context) ([]core.RawRecord, error) {
	samples, err := c.Samples(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]core.RawRecord, len(samples))
	for i, s := range samples {
		records[i] = s.Record(c.cfg.Section)
	}
	return records, nil
}

func (c *Client) samplePage(ctx context.Context, pageURL string) ([]Sample, string, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to list samples: %w", statusError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read samples: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var samples []Sample
		if err := gojson.Unmarshal(trimmed, &samples); err != nil {
			return nil, "", fmt.Errorf("failed to decode samples: %w", err)
		}
		return samples, "", nil
	}

	var p page
	if err := gojson.Unmarshal(trimmed, &p); err != nil {
		return nil, "", fmt.Errorf("failed to decode samples: %w", err)
	}
	if p.Next == nil || *p.Next == "" {
		return p.Results, "", nil
	}
	next, err := c.resolve(*p.Next)
	if err != nil {
		return nil, "", err
	}
	return p.Results, next, nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &ServerError{URL: c.URL(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet && method != http.MethodHead {
		req.Header.Set("Referer", c.URL())
		if token := c.csrfToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, &ServerError{URL: c.URL(), Err: err}
	}
	return resp, nil
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// resolve turns a possibly relative "next" link into an absolute URL on the same server.
func (c *Client) resolve(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid pagination link %q: %w", link, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}

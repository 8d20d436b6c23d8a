package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rzpsarthak13/vaccinesurvey/internal/kvstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type upstream struct {
	*httptest.Server
	calls atomic.Int64
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func get(t *testing.T, client *http.Client, url, cookie string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestTransportCachesWithinTTL(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "abc"})
		_, _ = io.WriteString(w, `[{"id":1}]`)
	})

	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryKVStore(kvstore.WithClock(c.Now))
	transport := NewTransport(store, WithTTL(time.Hour), WithNamespace("test"), WithLogger(zaptest.NewLogger(t)))
	client := &http.Client{Transport: transport}

	resp, body := get(t, client, up.URL+"/api/sample", "sessionid=one")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":1}]`, body)
	assert.Empty(t, resp.Header.Get(HeaderFromCache))
	assert.EqualValues(t, 1, up.calls.Load())

	resp, body = get(t, client, up.URL+"/api/sample", "sessionid=one")
	assert.Equal(t, `[{"id":1}]`, body)
	assert.Equal(t, "1", resp.Header.Get(HeaderFromCache))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Values("Set-Cookie"))
	assert.EqualValues(t, 1, up.calls.Load())

	c.Advance(time.Hour)
	get(t, client, up.URL+"/api/sample", "sessionid=one")
	assert.EqualValues(t, 2, up.calls.Load())

	hits, misses := transport.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)
}

func TestTransportSeparatesIdentities(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		c, _ := r.Cookie("sessionid")
		_, _ = io.WriteString(w, "hello "+c.Value)
	})

	client := &http.Client{Transport: NewTransport(kvstore.NewMemoryKVStore())}

	_, body := get(t, client, up.URL, "sessionid=alice")
	assert.Equal(t, "hello alice", body)
	_, body = get(t, client, up.URL, "sessionid=bob")
	assert.Equal(t, "hello bob", body)
	_, body = get(t, client, up.URL, "sessionid=alice")
	assert.Equal(t, "hello alice", body)

	assert.EqualValues(t, 2, up.calls.Load())
}

func TestTransportSkipsErrorsAndUnsafeMethods(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})

	client := &http.Client{Transport: NewTransport(kvstore.NewMemoryKVStore())}

	resp, _ := get(t, client, up.URL+"/broken", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	get(t, client, up.URL+"/broken", "")
	assert.EqualValues(t, 2, up.calls.Load())

	for i := 0; i < 2; i++ {
		resp, err := client.Post(up.URL+"/form", "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.EqualValues(t, 4, up.calls.Load())
}

func TestTransportCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, "slow")
	})

	client := &http.Client{Transport: NewTransport(kvstore.NewMemoryKVStore())}

	const callers = 5
	var wg sync.WaitGroup
	bodies := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, up.URL, nil)
			req.Header.Set("Cookie", "sessionid=x")
			resp, err := client.Do(req)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			bodies[i] = string(data)
		}(i)
	}

	// Let the callers pile up behind the first request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, b := range bodies {
		assert.Equal(t, "slow", b)
	}
	assert.LessOrEqual(t, up.calls.Load(), int64(2))
}

func TestTransportFollowerSurvivesCancelledLeader(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		_, _ = io.WriteString(w, "slow")
	})

	client := &http.Client{Transport: NewTransport(kvstore.NewMemoryKVStore(), WithLogger(zaptest.NewLogger(t)))}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		req, _ := http.NewRequestWithContext(leaderCtx, http.MethodGet, up.URL, nil)
		req.Header.Set("Cookie", "sessionid=x")
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		leaderErr <- err
	}()
	<-started

	followerBody := make(chan string, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, up.URL, nil)
		req.Header.Set("Cookie", "sessionid=x")
		resp, err := client.Do(req)
		if !assert.NoError(t, err) {
			followerBody <- ""
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		followerBody <- string(data)
	}()

	// Let the follower join the in-flight request before the leader gives up.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	assert.Equal(t, "slow", <-followerBody)
	assert.LessOrEqual(t, up.calls.Load(), int64(2))
}

func TestKeyBuilder(t *testing.T) {
	kb := NewKeyBuilder("ns")
	a := kb.BuildKey("GET", "http://x/api", "sessionid=1")
	b := kb.BuildKey("GET", "http://x/api", "sessionid=2")

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "ns:GET:http://x/api:")
	assert.NotContains(t, a, "sessionid")
}

func TestRequestIdentityIgnoresCookieOrder(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/", nil)
	r1.Header.Set("Cookie", "a=1; b=2")
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("Cookie", "b=2; a=1")

	assert.Equal(t, RequestIdentity(r1), RequestIdentity(r2))
	assert.Empty(t, RequestIdentity(httptest.NewRequest(http.MethodGet, "/", nil)))
}

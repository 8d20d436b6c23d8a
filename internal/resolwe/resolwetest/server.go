// Package resolwetest provides an in-process fake of the Resolwe REST API.
package resolwetest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"
)

// Fake serves the login and sample listing endpoints. Samples are only
// listed to a logged-in session. Paginated responses are returned when the
// request carries a limit parameter.
type Fake struct {
	mu       sync.RWMutex
	accounts map[string]string
	sessions map[string]string // session id -> username
	samples  []fakeSample
	nextID   int

	logins       atomic.Int64
	sampleLists  atomic.Int64
	csrfRejected atomic.Int64
	requireCSRF  bool
}

type fakeSample struct {
	ID               int            `json:"id"`
	Slug             string         `json:"slug"`
	Name             string         `json:"name"`
	DescriptorSchema map[string]any `json:"descriptor_schema"`
	Descriptor       map[string]any `json:"descriptor"`
}

// NewFake creates a fake server with one account.
func NewFake(username, password string) *Fake {
	return &Fake{
		accounts: map[string]string{username: password},
		sessions: make(map[string]string),
		nextID:   1,
	}
}

// AddAccount registers another account.
func (f *Fake) AddAccount(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[username] = password
}

// RequireCSRF makes the fake reject logins carrying a csrftoken cookie
// without the matching X-CSRFToken header, as Django does.
func (f *Fake) RequireCSRF() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requireCSRF = true
}

// AddSample stores a sample under a descriptor schema slug. The descriptor
// is served as-is; vaccine survey attributes live under the "sample" key.
func (f *Fake) AddSample(schemaSlug, name string, descriptor map[string]any) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.samples = append(f.samples, fakeSample{
		ID:               id,
		Slug:             "sample-" + strconv.Itoa(id),
		Name:             name,
		DescriptorSchema: map[string]any{"slug": schemaSlug},
		Descriptor:       descriptor,
	})
	return id
}

// Logins returns the number of successful logins.
func (f *Fake) Logins() int64 { return f.logins.Load() }

// SampleLists returns the number of sample listing requests served.
func (f *Fake) SampleLists() int64 { return f.sampleLists.Load() }

// CSRFRejected returns the number of logins refused for a missing CSRF header.
func (f *Fake) CSRFRejected() int64 { return f.csrfRejected.Load() }

// ServeHTTP implements http.Handler.
func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/rest-auth/login/":
		f.login(w, r)
	case "/api/sample", "/api/sample/":
		f.listSamples(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
	}
}

func (f *Fake) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "Method not allowed."})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
		return
	}

	f.mu.RLock()
	requireCSRF := f.requireCSRF
	password, known := f.accounts[r.PostForm.Get("username")]
	f.mu.RUnlock()

	if requireCSRF {
		if c, err := r.Cookie(csrfCookie); err == nil && r.Header.Get("X-CSRFToken") != c.Value {
			f.csrfRejected.Add(1)
			writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed: CSRF token missing or incorrect."})
			return
		}
	}

	if !known || password != r.PostForm.Get("password") {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"non_field_errors": []string{"Unable to log in with provided credentials."},
		})
		return
	}

	session := uuid.NewString()
	f.mu.Lock()
	f.sessions[session] = r.PostForm.Get("username")
	f.mu.Unlock()
	f.logins.Add(1)

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: uuid.NewString(), Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"key": session})
}

func (f *Fake) listSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "Method not allowed."})
		return
	}

	c, err := r.Cookie(sessionCookie)
	f.mu.RLock()
	_, loggedIn := f.sessions[valueOf(c, err)]
	var matched []fakeSample
	slug := r.URL.Query().Get("descriptor_schema__slug")
	for _, s := range f.samples {
		if slug == "" || s.DescriptorSchema["slug"] == slug {
			matched = append(matched, s)
		}
	}
	f.mu.RUnlock()

	if !loggedIn {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "Authentication credentials were not provided."})
		return
	}
	f.sampleLists.Add(1)

	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		if matched == nil {
			matched = []fakeSample{}
		}
		writeJSON(w, http.StatusOK, matched)
		return
	}

	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid limit"})
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 || offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	var next *string
	if end < len(matched) {
		q := r.URL.Query()
		q.Set("offset", strconv.Itoa(end))
		link := "http://" + r.Host + r.URL.Path + "?" + q.Encode()
		next = &link
	}
	results := matched[offset:end]
	if results == nil {
		results = []fakeSample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(matched),
		"next":     next,
		"previous": nil,
		"results":  results,
	})
}

func valueOf(c *http.Cookie, err error) string {
	if err != nil {
		return ""
	}
	return c.Value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(v)
}

// NewServer starts an httptest server backed by f.
func NewServer(f *Fake) *httptest.Server {
	return httptest.NewServer(f)
}

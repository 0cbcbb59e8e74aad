package cms

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeCMS serves canned bodies by path and records what it was asked for.
type fakeCMS struct {
	t      *testing.T
	srv    *httptest.Server
	hits   atomic.Int64
	mu     sync.Mutex
	routes map[string]fakeRoute
	reqs   []*http.Request
	bodies []string
}

type fakeRoute struct {
	status int
	body   string
}

func newFakeCMS(t *testing.T) *fakeCMS {
	t.Helper()
	f := &fakeCMS{t: t, routes: map[string]fakeRoute{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.srv.Client().CloseIdleConnections()
		f.srv.Close()
	})
	return f
}

// on registers a response for "METHOD /path".
func (f *fakeCMS) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fakeRoute{status: status, body: body}
}

func (f *fakeCMS) serve(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	buf, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.reqs = append(f.reqs, r.Clone(r.Context()))
	f.bodies = append(f.bodies, string(buf))
	route, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"data":null,"error":{"status":404,"name":"NotFoundError","message":"Not Found"}}`))
		return
	}
	w.WriteHeader(route.status)
	_, _ = w.Write([]byte(route.body))
}

func (f *fakeCMS) lastRequest() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		f.t.Fatal("no request recorded")
	}
	return f.reqs[len(f.reqs)-1], f.bodies[len(f.bodies)-1]
}

func (f *fakeCMS) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: f.srv.URL, HTTPClient: f.srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// recordingObserver implements Observer.
type recordingObserver struct {
	mu       sync.Mutex
	requests []string
	partial  []string
}

func (o *recordingObserver) ObserveCMSRequest(resource, outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, resource+":"+outcome)
}

func (o *recordingObserver) IncSearchPartialFailure(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.partial = append(o.partial, kind)
}

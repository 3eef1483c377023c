package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"walktale/pkg/store"
	"walktale/pkg/tracker"
)

func newTestClient(retries int) (*Client, *tracker.Tracker, *store.Memory) {
	tr := tracker.New()
	cache := store.NewMemory()
	bo := NewProviderBackoff(time.Millisecond, 5*time.Millisecond)
	return New(cache, tr, 2*time.Second, retries, bo), tr, cache
}

func TestGet_CachesResponse(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(1)
	ctx := context.Background()

	body, err := c.Get(ctx, srv.URL, "key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}

	// Second call must be served from cache.
	if _, err := c.Get(ctx, srv.URL, "key1"); err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestGet_NoCacheKeySkipsCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(1)
	ctx := context.Background()
	c.Get(ctx, srv.URL, "")
	c.Get(ctx, srv.URL, "")
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestExecute_RetriesOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(3)
	body, err := c.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("Get with retries: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestExecute_NoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(3)
	if _, err := c.Get(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(1)
	body, err := c.PostJSON(context.Background(), srv.URL, []byte(`{"q":1}`))
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"router.project-osrm.org", "osrm"},
		{"texttospeech.googleapis.com", "tts"},
		{"maps.googleapis.com", "maps"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := normalizeProvider(tt.host); got != tt.want {
			t.Errorf("normalizeProvider(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestTrackerCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, tr, _ := newTestClient(1)
	c.Get(context.Background(), srv.URL, "")

	snap := tr.Snapshot()
	var total int64
	for _, s := range snap {
		total += s.Requests
	}
	if total != 1 {
		t.Errorf("tracked requests = %d, want 1", total)
	}
}

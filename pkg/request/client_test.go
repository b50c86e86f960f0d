package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"argusgo/pkg/cache"
	"argusgo/pkg/db"
	"argusgo/pkg/store"
	"argusgo/pkg/tracker"
)

// fastOptions keeps retry delays and rate limiting out of test time.
func fastOptions() Options {
	return Options{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, QPS: 1000}
}

func TestGet_Sequential(t *testing.T) {
	// Handler sleeps to prove requests to one provider never overlap.
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			// Different providers run in parallel, but this server is
			// a single host and must be serialized.
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(200)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := NewWithOptions(cache.NewMemory(), tracker.New(), fastOptions())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()

	depths := client.QueueDepths()
	if len(depths) != 1 {
		t.Errorf("QueueDepths has %d providers, want 1", len(depths))
	}
	for provider, depth := range depths {
		if depth != 0 {
			t.Errorf("provider %s has %d queued jobs after drain", provider, depth)
		}
	}
}

func TestGet_Retry(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		if _, err := w.Write([]byte("success")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := NewWithOptions(cache.NewMemory(), tracker.New(), fastOptions())

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestGet_RateLimited(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer svr.Close()

	client := NewWithOptions(cache.NewMemory(), tracker.New(), fastOptions())

	_, err := client.Get(context.Background(), svr.URL, "")
	if err == nil {
		t.Fatal("expected error when provider keeps answering 429")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestGet_HardFailureNoRetry(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer svr.Close()

	client := NewWithOptions(cache.NewMemory(), tracker.New(), fastOptions())

	if _, err := client.Get(context.Background(), svr.URL, ""); err == nil {
		t.Fatal("expected error on 404")
	}
	if attempts != 1 {
		t.Errorf("404 must not be retried, got %d attempts", attempts)
	}
}

func TestGet_DefaultUserAgent(t *testing.T) {
	var gotUA string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(200)
	}))
	defer svr.Close()

	client := NewWithOptions(cache.NewMemory(), tracker.New(), fastOptions())
	if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
		t.Fatal(err)
	}
	if gotUA != defaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, defaultUserAgent)
	}

	// Explicit header wins over the default.
	if _, err := client.GetWithHeaders(context.Background(), svr.URL, map[string]string{"User-Agent": "custom/1.0"}, ""); err != nil {
		t.Fatal(err)
	}
	if gotUA != "custom/1.0" {
		t.Errorf("User-Agent = %q, want custom/1.0", gotUA)
	}
}

func TestGet_CachesResponse(t *testing.T) {
	hits := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(200)
		if _, err := w.Write([]byte("payload")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	// Real sqlite-backed cache to cover the full write and read path.
	d, err := db.Init(filepath.Join(t.TempDir(), "client_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	st := store.NewSQLiteStore(d)
	client := NewWithOptions(st, tracker.New(), fastOptions())

	ctx := context.Background()
	body, err := client.Get(ctx, svr.URL, "test:key")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q, want payload", body)
	}

	// Second call must come from cache.
	if _, err := client.Get(ctx, svr.URL, "test:key"); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1 (second call cached)", hits)
	}

	// A tiny TTL treats the stored entry as stale and refetches.
	time.Sleep(50 * time.Millisecond)
	if _, err := client.GetCached(ctx, svr.URL, nil, "test:key", time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2 after TTL expiry", hits)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 2 ", 2 * time.Second},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

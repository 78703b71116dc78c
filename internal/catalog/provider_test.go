package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const remoteDocument = `{
  "en_US": {
    "amy": {
      "medium": {
        "key": "en_US-amy-medium",
        "name": "Amy",
        "files": {
          "en_US/amy/medium/en_US-amy-medium.onnx": {"size_bytes": 100, "md5_digest": "abc"}
        }
      }
    }
  }
}`

// newCatalogServer returns a test server serving the remote document and a
// counter of requests it saw.
func newCatalogServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(remoteDocument))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

// writeCacheFile writes a cache document with its mtime set age in the past.
func writeCacheFile(t *testing.T, path string, content string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir cache dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

// TestFetchServesFreshCacheWithoutNetwork verifies a 23 hour old cache is
// returned with zero network calls.
func TestFetchServesFreshCacheWithoutNetwork(t *testing.T) {
	server, requests := newCatalogServer(t)
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")
	writeCacheFile(t, cachePath, remoteDocument, 23*time.Hour)

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	c, err := p.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("catalog size = %d, want 1", c.Len())
	}
	if got := requests.Load(); got != 0 {
		t.Fatalf("network requests = %d, want 0 for fresh cache", got)
	}
}

// TestFetchRefreshesStaleCache verifies a 25 hour old cache triggers exactly
// one network call.
func TestFetchRefreshesStaleCache(t *testing.T) {
	server, requests := newCatalogServer(t)
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")
	writeCacheFile(t, cachePath, remoteDocument, 25*time.Hour)

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	if _, err := p.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("network requests = %d, want exactly 1 for stale cache", got)
	}
}

// TestFetchForceRefreshBypassesCache verifies forceRefresh ignores a fresh cache.
func TestFetchForceRefreshBypassesCache(t *testing.T) {
	server, requests := newCatalogServer(t)
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")
	writeCacheFile(t, cachePath, remoteDocument, time.Hour)

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	if _, err := p.Fetch(context.Background(), true); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("network requests = %d, want 1 on force refresh", got)
	}
}

// TestFetchFallsBackOnMalformedCache verifies corrupt cache content is
// silently replaced by a network fetch.
func TestFetchFallsBackOnMalformedCache(t *testing.T) {
	server, requests := newCatalogServer(t)
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")
	writeCacheFile(t, cachePath, "{broken", time.Hour)

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	c, err := p.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("catalog size = %d, want 1 from network", c.Len())
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("network requests = %d, want 1", got)
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(data) != remoteDocument {
		t.Fatal("cache should hold the raw fetched payload")
	}
}

// TestFetchWritesCacheOnFirstFetch verifies the payload is persisted verbatim.
func TestFetchWritesCacheOnFirstFetch(t *testing.T) {
	server, _ := newCatalogServer(t)
	cachePath := filepath.Join(t.TempDir(), "nested", "voices_catalog.json")

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	if _, err := p.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(data) != remoteDocument {
		t.Fatal("cache content should match the remote document byte for byte")
	}
}

// TestFetchSurfacesServerError verifies a non-success response is reported.
func TestFetchSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")

	p := NewProviderForTests(server.URL, cachePath, server.Client(), time.Now)
	if _, err := p.Fetch(context.Background(), false); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

// TestFetchSurfacesNetworkError verifies an unreachable endpoint is reported.
func TestFetchSurfacesNetworkError(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "voices_catalog.json")

	p := NewProviderForTests("http://127.0.0.1:1/voices.json", cachePath, &http.Client{Timeout: time.Second}, time.Now)
	if _, err := p.Fetch(context.Background(), false); err == nil {
		t.Fatal("expected network error")
	}
}

package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"audiobook-studio/internal/config"
)

// DefaultCatalogURL is the canonical location of the voices document.
const DefaultCatalogURL = "https://huggingface.co/rhasspy/piper-voices/raw/main/voices.json"

// cacheFreshness is how long a cached catalog is served without touching
// the network.
const cacheFreshness = 24 * time.Hour

const userAgent = "audiobook-studio"

// Provider fetches the voice catalog, preferring a recent on-disk copy of
// the remote document over a network round trip.
type Provider struct {
	catalogURL string
	cachePath  string
	client     *http.Client
	now        func() time.Time
}

// NewProvider creates a provider caching under the app cache directory.
func NewProvider(paths config.Paths) *Provider {
	return &Provider{
		catalogURL: DefaultCatalogURL,
		cachePath:  paths.CatalogCachePath(),
		client:     &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

// NewProviderForTests creates a provider with injectable endpoint and clock.
func NewProviderForTests(catalogURL, cachePath string, client *http.Client, now func() time.Time) *Provider {
	return &Provider{
		catalogURL: catalogURL,
		cachePath:  cachePath,
		client:     client,
		now:        now,
	}
}

// Fetch returns the catalog. Unless forceRefresh is set, a cache file
// younger than the freshness window is served without any network access.
// Every cache problem (missing, stale, unreadable, malformed) falls through
// silently to a network fetch; only a network failure after that is
// reported to the caller.
func (p *Provider) Fetch(ctx context.Context, forceRefresh bool) (*Catalog, error) {
	if !forceRefresh {
		if cached, ok := p.fromCache(); ok {
			return cached, nil
		}
	}

	data, err := p.download(ctx)
	if err != nil {
		return nil, err
	}
	p.writeCache(data)

	return Parse(data)
}

// fromCache parses the cached document when it is present and fresh.
func (p *Provider) fromCache() (*Catalog, bool) {
	info, err := os.Stat(p.cachePath)
	if err != nil {
		return nil, false
	}
	if p.now().Sub(info.ModTime()) >= cacheFreshness {
		return nil, false
	}

	data, err := os.ReadFile(p.cachePath)
	if err != nil {
		return nil, false
	}
	cached, err := Parse(data)
	if err != nil {
		return nil, false
	}
	return cached, true
}

// download retrieves the remote catalog document.
func (p *Provider) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	return data, nil
}

// writeCache persists the raw payload verbatim. A cache write failure never
// fails the fetch; the next call simply goes back to the network.
func (p *Provider) writeCache(data []byte) {
	if err := os.MkdirAll(filepath.Dir(p.cachePath), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(p.cachePath, data, 0o644)
}

package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const fallbackIcon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"></svg>`

type iconEntry struct {
	body       []byte
	expiration time.Time
}

// IconCache fetches SVG icon bodies from an upstream icon service and caches them
// in-memory with a TTL and a max-size bound. Lookups for icons the upstream cannot
// serve return a fallback empty SVG so pages render without broken images.
type IconCache struct {
	baseURL    string
	ttl        time.Duration
	maxSize    int
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]iconEntry
}

// NewIconCache creates an IconCache backed by the icon service at baseURL.
func NewIconCache(baseURL string, ttl time.Duration, maxSize int, logger *slog.Logger) *IconCache {
	return &IconCache{
		baseURL:    baseURL,
		ttl:        ttl,
		maxSize:    maxSize,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("module", "icons")),
		entries:    make(map[string]iconEntry),
	}
}

// Icon returns the SVG body for the named icon, fetching and caching it on a miss.
func (c *IconCache) Icon(ctx context.Context, name string) ([]byte, error) {
	if body, ok := c.get(name); ok {
		return body, nil
	}

	body, err := c.fetch(ctx, name)
	if err != nil {
		c.logger.Warn("Icon fetch failed, serving fallback",
			slog.String("icon", name),
			slog.String("error", err.Error()))
		return []byte(fallbackIcon), nil
	}

	c.set(name, body)
	return body, nil
}

// Size returns the number of cached icons.
func (c *IconCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *IconCache) get(name string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiration) {
		c.mu.Lock()
		delete(c.entries, name)
		c.mu.Unlock()
		return nil, false
	}
	return entry.body, true
}

func (c *IconCache) set(name string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[name] = iconEntry{
		body:       body,
		expiration: time.Now().Add(c.ttl),
	}
}

// evictOldest drops the entry closest to expiry. Called with mu held.
func (c *IconCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiration.Before(oldest) {
			oldestKey = k
			oldest = e.expiration
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *IconCache) fetch(ctx context.Context, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s.svg", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build icon request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch icon: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("icon service returned status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon body: %w", err)
	}
	return body, nil
}

package settings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
)

// Remote is the remote settings service.
type Remote interface {
	// UpdateSettings merges patch into the user's stored settings and
	// returns the full merged record.
	UpdateSettings(ctx context.Context, userID string, patch Patch) (BoardSettings, error)

	// FetchSettings returns the user's stored settings.
	FetchSettings(ctx context.Context, userID string) (BoardSettings, error)
}

// Cache holds the last known remote settings record. Concurrent misses
// share one fetch.
type Cache struct {
	remote Remote
	userID string
	ttl    time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	value     BoardSettings
	valid     bool
	fetchedAt time.Time
}

// NewCache returns a cache over remote. A ttl of zero keeps entries until
// Invalidate is called.
func NewCache(remote Remote, userID string, ttl time.Duration) *Cache {
	return &Cache{remote: remote, userID: userID, ttl: ttl}
}

// Get returns the cached record, fetching it when missing or expired.
func (c *Cache) Get(ctx context.Context) (BoardSettings, error) {
	if v, ok := c.Peek(); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(c.userID, func() (any, error) {
		v, err := c.remote.FetchSettings(ctx, c.userID)
		if err != nil {
			return BoardSettings{}, fault.SettingsSync(err)
		}
		c.Store(v)
		return v, nil
	})
	if err != nil {
		return BoardSettings{}, err
	}
	return res.(BoardSettings), nil
}

// Peek returns the cached record without fetching.
func (c *Cache) Peek() (BoardSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return BoardSettings{}, false
	}
	if c.ttl > 0 && time.Since(c.fetchedAt) > c.ttl {
		return BoardSettings{}, false
	}
	return c.value, true
}

// Store records v as the current remote value.
func (c *Cache) Store(v BoardSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.valid = true
	c.fetchedAt = time.Now()
}

// Invalidate forces the next Get to fetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

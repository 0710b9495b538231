package cache

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired. A zero expiration never
// expires.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.Expiration.IsZero() && now.After(e.Expiration)
}

// MemoryCache implements a simple in-memory cache. A ttl <= 0 keeps entries
// until they are deleted or the cache is cleared.
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	if ttl > 0 {
		go cache.cleanupExpired(cleanupInterval(ttl))
	}

	return cache
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry := &CacheEntry{Value: value}
	if c.ttl > 0 {
		entry.Expiration = time.Now().Add(c.ttl)
	}
	c.items[key] = entry
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired(time.Now()) {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine. The cache stays readable.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mutex.Lock()
			for key, entry := range c.items {
				if entry.IsExpired(now) {
					delete(c.items, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

// Artwork is a cached cover image.
type Artwork struct {
	Data     []byte
	MIMEType string
}

// ArtworkCache stores embedded cover art keyed by content hash, so tracks of
// the same album share one entry.
type ArtworkCache struct {
	*MemoryCache
}

// NewArtworkCache creates an artwork cache. Artwork is re-extracted on every
// scan, so entries never expire.
func NewArtworkCache() *ArtworkCache {
	return &ArtworkCache{MemoryCache: NewMemoryCache(0)}
}

// Put stores data and returns its id. An empty mimeType is sniffed from data.
func (ac *ArtworkCache) Put(data []byte, mimeType string) string {
	id := fmt.Sprintf("%x", md5.Sum(data))
	if mimeType == "" {
		mimeType = DetectImageType(data)
	}
	ac.Set(id, Artwork{Data: data, MIMEType: mimeType})
	return id
}

// Artwork retrieves cover art by id.
func (ac *ArtworkCache) Artwork(id string) (Artwork, bool) {
	value, exists := ac.Get(id)
	if !exists {
		return Artwork{}, false
	}
	art, ok := value.(Artwork)
	return art, ok
}

// DetectImageType guesses the MIME type of image data
func DetectImageType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// cacheFileName is the translation cache file inside the cache directory.
const cacheFileName = "translations.json"

type cacheEntry struct {
	Translation string    `json:"translation"`
	Timestamp   time.Time `json:"timestamp"`
}

// Cache is a persistent translation cache keyed by provider and source
// text hash. It is bounded: beyond the cap the oldest entries are evicted.
// Safe for concurrent use.
type Cache struct {
	path string
	cap  int

	mu      sync.Mutex
	entries map[string]cacheEntry
	dirty   bool
}

// OpenCache loads the cache file from dir, tolerating a missing or
// unreadable file by starting empty.
func OpenCache(dir string, capacity int) *Cache {
	c := &Cache{
		path:    filepath.Join(dir, cacheFileName),
		cap:     capacity,
		entries: make(map[string]cacheEntry),
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	// A corrupt cache file is discarded, not fatal.
	_ = json.Unmarshal(data, &c.entries)
	if c.entries == nil {
		c.entries = make(map[string]cacheEntry)
	}
	return c
}

func cacheKey(provider, text string) string {
	sum := sha256.Sum256([]byte(text))
	return provider + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached translation for the provider and source text.
func (c *Cache) Get(provider, text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(provider, text)]
	return e.Translation, ok
}

// Put stores a translation, evicting the oldest entries beyond the cap.
func (c *Cache) Put(provider, text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(provider, text)] = cacheEntry{
		Translation: translation,
		Timestamp:   time.Now().UTC(),
	}
	c.dirty = true

	if c.cap > 0 && len(c.entries) > c.cap {
		c.evictLocked()
	}
}

// evictLocked removes the oldest entries until the cache fits the cap.
func (c *Cache) evictLocked() {
	type keyed struct {
		key string
		ts  time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{key: k, ts: e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	for _, k := range all[:len(all)-c.cap] {
		delete(c.entries, k.key)
	}
}

// Len reports the number of cached translations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save writes the cache atomically via a temp file and rename. A clean
// cache is not rewritten.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding translation cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing translation cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing translation cache: %w", err)
	}
	c.dirty = false
	return nil
}

package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c := OpenCache(dir, 100)
	c.Put("llm", "hello", "你好")
	require.NoError(t, c.Save())

	reopened := OpenCache(dir, 100)
	got, ok := reopened.Get("llm", "hello")
	require.True(t, ok)
	assert.Equal(t, "你好", got)

	// Provider tag is part of the key.
	_, ok = reopened.Get("free", "hello")
	assert.False(t, ok)
}

func TestCacheEvictsOldest(t *testing.T) {
	c := OpenCache(t.TempDir(), 3)

	for i := 0; i < 3; i++ {
		c.Put("llm", fmt.Sprintf("text-%d", i), "tr")
		// Distinct timestamps so eviction order is deterministic.
		c.mu.Lock()
		e := c.entries[cacheKey("llm", fmt.Sprintf("text-%d", i))]
		e.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		c.entries[cacheKey("llm", fmt.Sprintf("text-%d", i))] = e
		c.mu.Unlock()
	}

	c.Put("llm", "text-3", "tr")
	assert.Equal(t, 3, c.Len())

	_, ok := c.Get("llm", "text-0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("llm", "text-3")
	assert.True(t, ok)
}

func TestCacheToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFileName), []byte("{garbage"), 0o644))

	c := OpenCache(dir, 10)
	assert.Zero(t, c.Len())
}

func TestCacheSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	c := OpenCache(dir, 10)
	c.Put("llm", "a", "b")
	require.NoError(t, c.Save())

	// No temp file left behind and the result is valid JSON.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cacheFileName, entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)
	var decoded map[string]cacheEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
}

func TestCacheCleanSaveIsNoop(t *testing.T) {
	dir := t.TempDir()
	c := OpenCache(dir, 10)
	require.NoError(t, c.Save())

	_, err := os.Stat(filepath.Join(dir, cacheFileName))
	assert.True(t, os.IsNotExist(err))
}

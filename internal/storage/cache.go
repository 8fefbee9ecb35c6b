package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tributarydb/tributary/internal/logging"
)

// QueryCacheConfig bounds the read cache by entry count, estimated memory,
// and entry age.
type QueryCacheConfig struct {
	MaxEntries  int           `json:"max_entries" yaml:"max_entries"`
	MaxMemoryMB int           `json:"max_memory_mb" yaml:"max_memory_mb"`
	TTL         time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultQueryCacheConfig returns the bounds used when none are configured.
func DefaultQueryCacheConfig() QueryCacheConfig {
	return QueryCacheConfig{
		MaxEntries:  10000,
		MaxMemoryMB: 64,
		TTL:         2 * time.Minute,
	}
}

// CacheStats reports the current cache footprint.
type CacheStats struct {
	Entries        int   `json:"entries"`
	MemoryBytes    int64 `json:"memoryBytes"`
	MaxMemoryBytes int64 `json:"maxMemoryBytes"`
}

type cacheEntry struct {
	Result   *QueryResult
	CachedAt time.Time
	Size     int64
	Tags     []string
}

// QueryCache is an LRU of parsed read results. Entries are tagged with the
// branch names their query touched so a write to one branch evicts only the
// reads whose lineage includes it.
//
// All LRU mutations happen under mu; the eviction callback runs inside those
// calls and therefore updates usedMemory and the tag index without locking.
type QueryCache struct {
	config  QueryCacheConfig
	metrics *Metrics
	logger  *logging.Logger

	mu         sync.Mutex
	lru        *lru.Cache[string, *cacheEntry]
	byTag      map[string]map[string]struct{}
	usedMemory int64
}

// NewQueryCache builds a cache with the given bounds, filling in defaults
// for anything unset.
func NewQueryCache(config QueryCacheConfig, metrics *Metrics) (*QueryCache, error) {
	defaults := DefaultQueryCacheConfig()
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.MaxMemoryMB <= 0 {
		config.MaxMemoryMB = defaults.MaxMemoryMB
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}

	qc := &QueryCache{
		config:  config,
		metrics: metrics,
		logger:  logging.GetLogger("storage.cache"),
		byTag:   map[string]map[string]struct{}{},
	}

	cache, err := lru.NewWithEvict[string, *cacheEntry](config.MaxEntries, qc.onEvict)
	if err != nil {
		return nil, err
	}
	qc.lru = cache
	return qc, nil
}

// onEvict runs inside lru calls made under qc.mu; it must not lock.
func (qc *QueryCache) onEvict(key string, entry *cacheEntry) {
	qc.usedMemory -= entry.Size
	for _, tag := range entry.Tags {
		if keys, ok := qc.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(qc.byTag, tag)
			}
		}
	}
	qc.metrics.cacheEvicted()
	qc.metrics.setCacheMemory(qc.usedMemory)
}

// Get returns the cached result for key, or nil when absent or expired.
func (qc *QueryCache) Get(key string) *QueryResult {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.lru.Get(key)
	if !ok {
		return nil
	}
	if time.Since(entry.CachedAt) > qc.config.TTL {
		qc.lru.Remove(key)
		return nil
	}
	return entry.Result
}

// Put stores a result under key, tagged with the branches it depends on.
// Results larger than the whole memory budget are not cached.
func (qc *QueryCache) Put(key string, result *QueryResult, tags []string) {
	if result == nil {
		return
	}
	size := estimateResultSize(result)
	maxMemory := int64(qc.config.MaxMemoryMB) * 1024 * 1024
	if size > maxMemory {
		qc.logger.DebugWithFields("Result too large to cache", logging.Field("size_bytes", size))
		return
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.lru.Remove(key)
	for qc.usedMemory+size > maxMemory && qc.lru.Len() > 0 {
		qc.lru.RemoveOldest()
	}

	entry := &cacheEntry{
		Result:   result,
		CachedAt: time.Now(),
		Size:     size,
		Tags:     tags,
	}
	qc.lru.Add(key, entry)
	qc.usedMemory += size
	for _, tag := range tags {
		keys, ok := qc.byTag[tag]
		if !ok {
			keys = map[string]struct{}{}
			qc.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	qc.metrics.setCacheMemory(qc.usedMemory)
}

// InvalidateTags drops every entry tagged with any of the given tags.
func (qc *QueryCache) InvalidateTags(tags []string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	for _, tag := range tags {
		keys, ok := qc.byTag[tag]
		if !ok {
			continue
		}
		for key := range keys {
			qc.lru.Remove(key)
		}
	}
}

// Clear drops every entry.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.lru.Purge()
	qc.byTag = map[string]map[string]struct{}{}
	qc.usedMemory = 0
	qc.metrics.setCacheMemory(0)
}

// Stats reports the current footprint.
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	return CacheStats{
		Entries:        qc.lru.Len(),
		MemoryBytes:    qc.usedMemory,
		MaxMemoryBytes: int64(qc.config.MaxMemoryMB) * 1024 * 1024,
	}
}

// MakeQueryKey derives a stable cache key from the query text and its
// parameters, hashed in sorted key order.
func MakeQueryKey(query *GraphQuery) string {
	h := sha256.New()
	h.Write([]byte(query.Query))
	if len(query.Parameters) > 0 {
		keys := make([]string, 0, len(query.Parameters))
		for key := range query.Parameters {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			h.Write([]byte(key))
			encoded, err := json.Marshal(query.Parameters[key])
			if err != nil {
				continue
			}
			h.Write(encoded)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// estimateResultSize approximates memory use via the JSON encoding; coarse
// but stable across result shapes.
func estimateResultSize(result *QueryResult) int64 {
	encoded, err := json.Marshal(result)
	if err != nil {
		return 1024
	}
	return int64(len(encoded))
}

// branchTags extracts branch names from query parameters. Lineage filters
// bind $branch0..$branchN, branch CRUD binds $branch or $target_branch; any
// string parameter under a branch-ish key counts.
func branchTags(query *GraphQuery) []string {
	if query == nil || len(query.Parameters) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var tags []string
	for key, value := range query.Parameters {
		if !strings.HasPrefix(key, "branch") && !strings.HasSuffix(key, "branch") {
			continue
		}
		name, ok := value.(string)
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	sort.Strings(tags)
	return tags
}

// writeKeywords flag queries that mutate the graph; a read carrying one of
// these bypasses the cache instead of poisoning it.
var writeKeywords = []string{"CREATE", "MERGE", "DELETE", "DETACH", "SET", "REMOVE"}

func isWriteQuery(query string) bool {
	upper := strings.ToUpper(query)
	for _, keyword := range writeKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}
	return false
}

// cachedClient serves reads from the cache and invalidates affected branches
// on writes.
type cachedClient struct {
	inner  Client
	cache  *QueryCache
	logger *logging.Logger
}

func newCachedClient(inner Client, config QueryCacheConfig, metrics *Metrics) *cachedClient {
	cache, err := NewQueryCache(config, metrics)
	if err != nil {
		// Only reachable with a non-positive entry bound, which the config
		// defaulting prevents.
		panic(err)
	}
	return &cachedClient{
		inner:  inner,
		cache:  cache,
		logger: logging.GetLogger("storage.cache"),
	}
}

func (c *cachedClient) Connect(ctx context.Context) error { return c.inner.Connect(ctx) }

func (c *cachedClient) Close() error {
	c.cache.Clear()
	return c.inner.Close()
}

func (c *cachedClient) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *cachedClient) ExecuteRead(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	if query == nil {
		return c.inner.ExecuteRead(ctx, query)
	}
	if isWriteQuery(query.Query) {
		c.invalidate(query)
		return c.inner.ExecuteRead(ctx, query)
	}

	key := MakeQueryKey(query)
	if cached := c.cache.Get(key); cached != nil {
		c.cache.metrics.cacheHit()
		return cached, nil
	}
	c.cache.metrics.cacheMiss()

	result, err := c.inner.ExecuteRead(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, result, branchTags(query))
	return result, nil
}

func (c *cachedClient) ExecuteWrite(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	result, err := c.inner.ExecuteWrite(ctx, query)
	if err == nil {
		c.invalidate(query)
	}
	return result, err
}

func (c *cachedClient) invalidate(query *GraphQuery) {
	tags := branchTags(query)
	if len(tags) == 0 {
		c.cache.Clear()
		return
	}
	c.cache.InvalidateTags(tags)
}

func (c *cachedClient) InitializeSchema(ctx context.Context) error {
	return c.inner.InitializeSchema(ctx)
}

func (c *cachedClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	return c.inner.GetGraphStats(ctx)
}

func (c *cachedClient) DeleteGraph(ctx context.Context) error {
	c.cache.Clear()
	return c.inner.DeleteGraph(ctx)
}

// CacheStats exposes the footprint of the underlying cache.
func (c *cachedClient) CacheStats() CacheStats {
	return c.cache.Stats()
}

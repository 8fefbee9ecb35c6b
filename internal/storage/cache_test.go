package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(rows int) *QueryResult {
	result := &QueryResult{Columns: []string{"n"}}
	for i := 0; i < rows; i++ {
		result.Rows = append(result.Rows, []interface{}{i})
	}
	return result
}

func TestMakeQueryKeyStable(t *testing.T) {
	a := &GraphQuery{
		Query:      "MATCH (n) RETURN n",
		Parameters: map[string]interface{}{"branch0": "main", "time0": "t1"},
	}
	b := &GraphQuery{
		Query:      "MATCH (n) RETURN n",
		Parameters: map[string]interface{}{"time0": "t1", "branch0": "main"},
	}
	assert.Equal(t, MakeQueryKey(a), MakeQueryKey(b), "key must not depend on map iteration order")

	c := &GraphQuery{
		Query:      "MATCH (n) RETURN n",
		Parameters: map[string]interface{}{"branch0": "other", "time0": "t1"},
	}
	assert.NotEqual(t, MakeQueryKey(a), MakeQueryKey(c))

	d := &GraphQuery{Query: "MATCH (m) RETURN m", Parameters: a.Parameters}
	assert.NotEqual(t, MakeQueryKey(a), MakeQueryKey(d))
}

func TestIsWriteQuery(t *testing.T) {
	assert.True(t, isWriteQuery("CREATE (n:Node) RETURN n"))
	assert.True(t, isWriteQuery("match (n) set n.x = 1"))
	assert.True(t, isWriteQuery("MATCH (n) DETACH DELETE n"))
	assert.False(t, isWriteQuery("MATCH (n) RETURN n"))
	assert.False(t, isWriteQuery("MATCH (n) WHERE n.branch = $branch RETURN count(n)"))
}

func TestBranchTags(t *testing.T) {
	query := &GraphQuery{
		Parameters: map[string]interface{}{
			"branch0":       "main",
			"branch1":       "branch1",
			"target_branch": "main",
			"time0":         "2023-01-01T00:00:00.000000000Z",
			"uuid":          "abc",
		},
	}
	assert.Equal(t, []string{"branch1", "main"}, branchTags(query))

	assert.Nil(t, branchTags(&GraphQuery{Parameters: map[string]interface{}{"uuid": "abc"}}))
	assert.Nil(t, branchTags(nil))
}

func TestQueryCachePutGet(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{TTL: time.Minute}, nil)
	require.NoError(t, err)

	result := testResult(3)
	cache.Put("k1", result, []string{"main"})

	got := cache.Get("k1")
	require.NotNil(t, got)
	assert.Equal(t, result, got)
	assert.Nil(t, cache.Get("missing"))
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestQueryCacheTTLExpiry(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{TTL: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	cache.Put("k1", testResult(1), nil)
	require.NotNil(t, cache.Get("k1"))

	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, cache.Get("k1"), "expired entry must not be served")
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestQueryCacheTagInvalidation(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{TTL: time.Minute}, nil)
	require.NoError(t, err)

	cache.Put("read-main", testResult(1), []string{"main"})
	cache.Put("read-branch1", testResult(1), []string{"main", "branch1"})
	cache.Put("read-branch2", testResult(1), []string{"main", "branch2"})

	cache.InvalidateTags([]string{"branch1"})
	assert.NotNil(t, cache.Get("read-main"))
	assert.Nil(t, cache.Get("read-branch1"))
	assert.NotNil(t, cache.Get("read-branch2"))

	// A write on main invalidates every lineage read that includes main.
	cache.InvalidateTags([]string{"main"})
	assert.Nil(t, cache.Get("read-main"))
	assert.Nil(t, cache.Get("read-branch2"))
	assert.Equal(t, 0, cache.Stats().Entries)
	assert.Equal(t, int64(0), cache.Stats().MemoryBytes)
}

func TestQueryCacheMemoryAccounting(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{TTL: time.Minute}, nil)
	require.NoError(t, err)

	cache.Put("k1", testResult(5), []string{"main"})
	size := cache.Stats().MemoryBytes
	require.Greater(t, size, int64(0))

	// Replacing a key must not double-count its old size.
	cache.Put("k1", testResult(5), []string{"main"})
	assert.Equal(t, size, cache.Stats().MemoryBytes)

	cache.Clear()
	assert.Equal(t, int64(0), cache.Stats().MemoryBytes)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestQueryCacheEntryBound(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{MaxEntries: 2, TTL: time.Minute}, nil)
	require.NoError(t, err)

	cache.Put("k1", testResult(1), []string{"main"})
	cache.Put("k2", testResult(1), []string{"main"})
	cache.Put("k3", testResult(1), []string{"main"})

	assert.Equal(t, 2, cache.Stats().Entries)
	assert.Nil(t, cache.Get("k1"), "oldest entry is evicted at capacity")
	assert.NotNil(t, cache.Get("k3"))
}

func TestCachedClientServesReads(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = func(query *GraphQuery) (*QueryResult, error) {
		return testResult(2), nil
	}
	client := newCachedClient(fake, QueryCacheConfig{TTL: time.Minute}, nil)

	query := &GraphQuery{
		Name:       "node_list",
		Query:      "MATCH (n:Node) WHERE n.branch = $branch0 RETURN n",
		Parameters: map[string]interface{}{"branch0": "main"},
	}

	first, err := client.ExecuteRead(context.Background(), query)
	require.NoError(t, err)
	second, err := client.ExecuteRead(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.readCount(), "second read must come from the cache")
}

func TestCachedClientWriteInvalidatesBranch(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = func(query *GraphQuery) (*QueryResult, error) {
		return testResult(1), nil
	}
	client := newCachedClient(fake, QueryCacheConfig{TTL: time.Minute}, nil)
	ctx := context.Background()

	mainRead := &GraphQuery{
		Query:      "MATCH (n) WHERE n.branch = $branch0 RETURN n",
		Parameters: map[string]interface{}{"branch0": "main"},
	}
	otherRead := &GraphQuery{
		Query:      "MATCH (n) WHERE n.branch = $branch0 RETURN n",
		Parameters: map[string]interface{}{"branch0": "branch2"},
	}

	_, err := client.ExecuteRead(ctx, mainRead)
	require.NoError(t, err)
	_, err = client.ExecuteRead(ctx, otherRead)
	require.NoError(t, err)
	require.Equal(t, 2, fake.readCount())

	_, err = client.ExecuteWrite(ctx, &GraphQuery{
		Query:      "CREATE (n:Node) SET n.branch = $branch",
		Parameters: map[string]interface{}{"branch": "main"},
	})
	require.NoError(t, err)

	_, err = client.ExecuteRead(ctx, otherRead)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.readCount(), "untouched branch stays cached")

	_, err = client.ExecuteRead(ctx, mainRead)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.readCount(), "written branch is re-read")
}

func TestCachedClientWriteWithoutBranchClearsAll(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = func(query *GraphQuery) (*QueryResult, error) {
		return testResult(1), nil
	}
	client := newCachedClient(fake, QueryCacheConfig{TTL: time.Minute}, nil)
	ctx := context.Background()

	read := &GraphQuery{
		Query:      "MATCH (n) WHERE n.branch = $branch0 RETURN n",
		Parameters: map[string]interface{}{"branch0": "main"},
	}
	_, err := client.ExecuteRead(ctx, read)
	require.NoError(t, err)

	_, err = client.ExecuteWrite(ctx, &GraphQuery{Query: "MATCH (n) DETACH DELETE n"})
	require.NoError(t, err)

	_, err = client.ExecuteRead(ctx, read)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.readCount())
}

func TestCachedClientBypassesWriteShapedReads(t *testing.T) {
	fake := newFakeClient()
	fake.readFn = func(query *GraphQuery) (*QueryResult, error) {
		return testResult(1), nil
	}
	client := newCachedClient(fake, QueryCacheConfig{TTL: time.Minute}, nil)
	ctx := context.Background()

	query := &GraphQuery{Query: "MERGE (v:AttributeValue {value: $value}) RETURN v"}
	_, err := client.ExecuteRead(ctx, query)
	require.NoError(t, err)
	_, err = client.ExecuteRead(ctx, query)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.readCount(), "write-shaped reads must never be cached")
}

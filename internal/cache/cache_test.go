package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryOnlyRoundTrip(t *testing.T) {
	c := NewMemoryOnly(10)
	ctx := context.Background()

	key := BranchKey("acme/widgets", "main")
	c.Set(ctx, key, samplePayload{Name: "analysis", Count: 3})

	var got samplePayload
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, "analysis", got.Name)
	assert.Equal(t, 3, got.Count)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.False(t, stats.RedisConnected)
}

func TestGetMissesForAbsentKey(t *testing.T) {
	c := NewMemoryOnly(10)

	var got samplePayload
	assert.False(t, c.Get(context.Background(), BranchKey("acme/widgets", "main"), &got))
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestInertCacheNeverHits(t *testing.T) {
	c := NewInert()
	ctx := context.Background()

	key := BranchKey("acme/widgets", "main")
	c.Set(ctx, key, samplePayload{Name: "dropped"})

	var got samplePayload
	assert.False(t, c.Get(ctx, key, &got))
}

func TestLRUEvictionByInsertionOrder(t *testing.T) {
	c := NewMemoryOnly(2)
	ctx := context.Background()

	k1 := BranchKey("acme/widgets", "b1")
	k2 := BranchKey("acme/widgets", "b2")
	k3 := BranchKey("acme/widgets", "b3")

	c.Set(ctx, k1, samplePayload{Count: 1})
	c.Set(ctx, k2, samplePayload{Count: 2})
	c.Set(ctx, k3, samplePayload{Count: 3})

	var got samplePayload
	assert.False(t, c.Get(ctx, k1, &got), "oldest entry should be evicted")
	assert.True(t, c.Get(ctx, k2, &got))
	assert.True(t, c.Get(ctx, k3, &got))
}

func TestInvalidateRepoRemovesOnlyThatRepo(t *testing.T) {
	c := NewMemoryOnly(10)
	ctx := context.Background()

	widgetsKey := BranchKey("acme/widgets", "main")
	otherKey := BranchKey("acme/other", "main")
	similarKey := BranchKey("acme/widgets2", "main")

	c.Set(ctx, widgetsKey, samplePayload{Count: 1})
	c.Set(ctx, otherKey, samplePayload{Count: 2})
	c.Set(ctx, similarKey, samplePayload{Count: 3})

	deleted := c.InvalidateRepo(ctx, "https://github.com/acme/widgets")
	assert.Equal(t, 1, deleted)

	var got samplePayload
	assert.False(t, c.Get(ctx, widgetsKey, &got))
	assert.True(t, c.Get(ctx, otherKey, &got))
	assert.True(t, c.Get(ctx, similarKey, &got))
}

func TestLargePayloadCompression(t *testing.T) {
	c := NewMemoryOnly(10)
	ctx := context.Background()

	// Highly repetitive payload well past the 10 KiB threshold
	big := samplePayload{Name: strings.Repeat("abcdefgh", 4096), Count: 1}
	key := FileKey("acme/widgets", "deadbeef")
	c.Set(ctx, key, big)

	assert.Equal(t, int64(1), c.Stats().Compressions)

	var got samplePayload
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, big.Name, got.Name)
}

func TestCompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("redundant data "), 2048)

	compressed := compressPayload(original)
	require.True(t, isCompressed(compressed))
	assert.Less(t, len(compressed), len(original))

	restored, err := decompressPayload(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestDecompressPassesThroughPlainPayloads(t *testing.T) {
	plain := []byte(`{"name":"x"}`)
	restored, err := decompressPayload(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, restored)
}

func TestIncompressiblePayloadStoredUnframed(t *testing.T) {
	// Short payloads cannot shrink; compressPayload must return them as-is
	data := []byte("tiny")
	assert.Equal(t, data, compressPayload(data))
}

// failingTier errors on every operation, standing in for an unreachable
// distributed backend
type failingTier struct{}

func (f *failingTier) get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errFailingTier
}

func (f *failingTier) getMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	return nil, errFailingTier
}

func (f *failingTier) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return errFailingTier
}

func (f *failingTier) deleteMatching(ctx context.Context, pattern string, match func(key string) bool) (int64, error) {
	return 0, errFailingTier
}

func (f *failingTier) healthCheck(ctx context.Context) error { return errFailingTier }
func (f *failingTier) close() error                          { return nil }

var errFailingTier = errors.New("connection refused")

func TestDistributedTierFailureFallsBackToMemory(t *testing.T) {
	c := NewMemoryOnly(10)
	c.redis = &failingTier{}
	ctx := context.Background()

	key := BranchKey("acme/widgets", "main")
	c.Set(ctx, key, samplePayload{Name: "resilient", Count: 7})

	var got samplePayload
	require.True(t, c.Get(ctx, key, &got), "in-process copy must serve when the distributed tier errors")
	assert.Equal(t, "resilient", got.Name)
	assert.Equal(t, 7, got.Count)

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.MemoryFallbacks, int64(2), "both the failed write and the failed read fall back")
	assert.GreaterOrEqual(t, stats.Errors, int64(2))
	assert.Equal(t, int64(1), stats.Hits)
}

func TestInvalidateRepoSurvivesDistributedFailure(t *testing.T) {
	c := NewMemoryOnly(10)
	c.redis = &failingTier{}
	ctx := context.Background()

	key := BranchKey("acme/widgets", "main")
	c.Set(ctx, key, samplePayload{Count: 1})

	deleted := c.InvalidateRepo(ctx, "https://github.com/acme/widgets")
	assert.Equal(t, 1, deleted, "in-process entries are still invalidated")

	var got samplePayload
	assert.False(t, c.Get(ctx, key, &got))
}

func TestMemoryTierTTLExpiry(t *testing.T) {
	tier := newMemoryTier(10)
	tier.set("k", []byte("v"), 10*time.Millisecond)

	_, found := tier.get("k")
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)
	_, found = tier.get("k")
	assert.False(t, found, "entry should expire after its TTL")
	assert.Equal(t, 0, tier.len(), "expired entry must leave the LRU index")
}

func TestMemoryTierExpiredEntriesFreeCapacity(t *testing.T) {
	tier := newMemoryTier(2)

	tier.set("short1", []byte("v"), 10*time.Millisecond)
	tier.set("short2", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, tier.len(), "len must sweep expired entries")

	// With the dead entries swept, two live entries fit without evicting
	// each other
	tier.set("live1", []byte("v"), time.Minute)
	tier.set("live2", []byte("v"), time.Minute)

	_, found := tier.get("live1")
	assert.True(t, found)
	_, found = tier.get("live2")
	assert.True(t, found)
	assert.Equal(t, 2, tier.len())
}

func TestTTLPolicyPerKind(t *testing.T) {
	c := NewMemoryOnly(10)

	assert.Equal(t, 7*24*time.Hour, c.TTLFor(KindTool))
	assert.Equal(t, time.Hour, c.TTLFor(KindBranch))
	assert.Equal(t, 5*time.Minute, c.TTLFor(KindComparison))
	assert.Equal(t, 24*time.Hour, c.TTLFor(KindFile))
	assert.Equal(t, 12*time.Hour, c.TTLFor(KindRepo))
}

func TestSetMultiAndGetMulti(t *testing.T) {
	c := NewMemoryOnly(10)
	ctx := context.Background()

	k1 := BranchKey("acme/widgets", "main")
	k2 := BranchKey("acme/widgets", "pr-7")
	c.SetMulti(ctx, []Entry{
		{Key: k1, Value: samplePayload{Count: 1}},
		{Key: k2, Value: samplePayload{Count: 2}},
	})

	absent := BranchKey("acme/widgets", "gone")
	found := c.GetMulti(ctx, []Key{k1, k2, absent})

	assert.Len(t, found, 2)
	assert.Contains(t, found, k1.String())
	assert.Contains(t, found, k2.String())
	assert.NotContains(t, found, absent.String())
}

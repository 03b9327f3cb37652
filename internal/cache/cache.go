package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/diffsight/diffsight-go/internal/config"
)

// distTier is the contract the cache needs from its distributed backend.
// redisTier is the production implementation; tests substitute failing fakes
// to exercise the degradation paths.
type distTier interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	getMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	deleteMatching(ctx context.Context, pattern string, match func(key string) bool) (int64, error)
	healthCheck(ctx context.Context) error
	close() error
}

// Cache is the two-tier artifact cache: a distributed Redis primary with a
// bounded in-process fallback. Cache errors never propagate; a failed read is
// a miss and a failed write falls back to the in-process tier. The pipeline
// stays correct with an inert cache.
type Cache struct {
	redis  distTier // nil when the distributed tier is unavailable
	memory *memoryTier
	logger *slog.Logger

	compressionThreshold int
	readTimeout          time.Duration
	disabled             bool

	ttls map[Kind]time.Duration

	hits          atomic.Int64
	misses        atomic.Int64
	errors        atomic.Int64
	fallbacks     atomic.Int64
	compressions  atomic.Int64
	hitLatencyNs  atomic.Int64
	missLatencyNs atomic.Int64
}

// Entry pairs a key with its payload for batch puts
type Entry struct {
	Key   Key
	Value interface{}
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	Errors          int64         `json:"errors"`
	MemoryFallbacks int64         `json:"memory_fallbacks"`
	Compressions    int64         `json:"compressions"`
	MemoryEntries   int           `json:"memory_entries"`
	AvgHitLatency   time.Duration `json:"avg_hit_latency"`
	AvgMissLatency  time.Duration `json:"avg_miss_latency"`
	RedisConnected  bool          `json:"redis_connected"`
}

// New constructs the cache, connecting to Redis at the configured endpoint.
// When Redis is unreachable the cache degrades to memory-only with a single
// warning; that is not an error.
func New(ctx context.Context, cfg config.CacheConfig) *Cache {
	c := &Cache{
		memory:               newMemoryTier(cfg.MemoryMaxEntries),
		logger:               slog.Default().With("component", "cache"),
		compressionThreshold: cfg.CompressionThreshold,
		readTimeout:          cfg.ReadTimeout,
		ttls:                 ttlTable(cfg),
	}
	if c.compressionThreshold <= 0 {
		c.compressionThreshold = 10 * 1024
	}
	if c.readTimeout <= 0 {
		c.readTimeout = time.Second
	}

	redis, err := newRedisTier(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		c.logger.Warn("distributed cache unavailable, using in-process tier only", "error", err)
	} else {
		c.redis = redis
	}
	return c
}

// NewInert returns a cache where every get misses and every put is dropped.
// Used in tests and wherever caching must be disabled outright.
func NewInert() *Cache {
	return &Cache{
		memory:               newMemoryTier(1),
		logger:               slog.Default().With("component", "cache"),
		compressionThreshold: 10 * 1024,
		readTimeout:          time.Second,
		ttls:                 ttlTable(config.CacheConfig{}),
		disabled:             true,
	}
}

// NewMemoryOnly returns a cache backed only by the in-process tier. The
// injection seam for tests that need real cache behavior without Redis.
func NewMemoryOnly(maxEntries int) *Cache {
	return &Cache{
		memory:               newMemoryTier(maxEntries),
		logger:               slog.Default().With("component", "cache"),
		compressionThreshold: 10 * 1024,
		readTimeout:          time.Second,
		ttls:                 ttlTable(config.CacheConfig{}),
	}
}

func ttlTable(cfg config.CacheConfig) map[Kind]time.Duration {
	ttls := map[Kind]time.Duration{
		KindTool:       7 * 24 * time.Hour,
		KindBranch:     time.Hour,
		KindComparison: 5 * time.Minute,
		KindFile:       24 * time.Hour,
		KindRepo:       12 * time.Hour,
		KindIssues:     time.Hour,
		KindContext:    time.Hour,
		KindChat:       time.Hour,
	}
	if cfg.ToolResultTTL > 0 {
		ttls[KindTool] = cfg.ToolResultTTL
	}
	if cfg.BranchAnalysisTTL > 0 {
		ttls[KindBranch] = cfg.BranchAnalysisTTL
	}
	if cfg.ComparisonTTL > 0 {
		ttls[KindComparison] = cfg.ComparisonTTL
	}
	if cfg.FileContentTTL > 0 {
		ttls[KindFile] = cfg.FileContentTTL
	}
	if cfg.RepoMetadataTTL > 0 {
		ttls[KindRepo] = cfg.RepoMetadataTTL
	}
	return ttls
}

// TTLFor returns the TTL applied to artifacts of the given kind
func (c *Cache) TTLFor(kind Kind) time.Duration {
	if ttl, ok := c.ttls[kind]; ok {
		return ttl
	}
	return time.Hour
}

// Get retrieves and unmarshals a cached artifact into target. Returns true
// on a hit. Errors are counted and reported as misses.
func (c *Cache) Get(ctx context.Context, key Key, target interface{}) bool {
	if c.disabled {
		return false
	}
	start := time.Now()
	ks := key.String()

	data, found := c.fetch(ctx, ks)
	if !found {
		c.misses.Add(1)
		c.missLatencyNs.Add(time.Since(start).Nanoseconds())
		return false
	}

	payload, err := decompressPayload(data)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache payload decompress failed", "key", ks, "error", err)
		return false
	}
	if err := json.Unmarshal(payload, target); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache payload unmarshal failed", "key", ks, "error", err)
		return false
	}

	c.hits.Add(1)
	c.hitLatencyNs.Add(time.Since(start).Nanoseconds())
	return true
}

func (c *Cache) fetch(ctx context.Context, key string) ([]byte, bool) {
	if c.redis != nil {
		readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		data, found, err := c.redis.get(readCtx, key)
		cancel()
		if err != nil {
			c.errors.Add(1)
			c.fallbacks.Add(1)
			c.logger.Debug("distributed read failed, trying in-process tier", "key", key, "error", err)
		} else if found {
			return data, true
		}
	}
	return c.memory.get(key)
}

// Set stores an artifact under the TTL for its kind. Both tiers are written;
// a distributed-tier failure leaves the in-process copy in place and is only
// counted.
func (c *Cache) Set(ctx context.Context, key Key, value interface{}) {
	c.SetWithTTL(ctx, key, value, c.TTLFor(key.Kind))
}

// SetWithTTL stores an artifact under an explicit TTL, overriding the
// per-kind policy
func (c *Cache) SetWithTTL(ctx context.Context, key Key, value interface{}, ttl time.Duration) {
	if c.disabled {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache marshal failed", "key", key.String(), "error", err)
		return
	}

	if len(payload) > c.compressionThreshold {
		compressed := compressPayload(payload)
		if len(compressed) < len(payload) {
			payload = compressed
			c.compressions.Add(1)
		}
	}

	ks := key.String()
	c.memory.set(ks, payload, ttl)

	if c.redis != nil {
		if err := c.redis.set(ctx, ks, payload, ttl); err != nil {
			c.errors.Add(1)
			c.fallbacks.Add(1)
			c.logger.Debug("distributed write failed, in-process tier holds entry", "key", ks, "error", err)
		}
	}
}

// SetMulti stores several artifacts
func (c *Cache) SetMulti(ctx context.Context, entries []Entry) {
	for _, e := range entries {
		c.Set(ctx, e.Key, e.Value)
	}
}

// GetMulti retrieves several artifacts in one distributed round trip.
// Returns raw JSON payloads keyed by rendered key string; absent keys are
// omitted.
func (c *Cache) GetMulti(ctx context.Context, keys []Key) map[string]json.RawMessage {
	result := make(map[string]json.RawMessage, len(keys))
	if c.disabled || len(keys) == 0 {
		return result
	}

	rendered := make([]string, len(keys))
	for i, k := range keys {
		rendered[i] = k.String()
	}

	if c.redis != nil {
		readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		found, err := c.redis.getMulti(readCtx, rendered)
		cancel()
		if err != nil {
			c.errors.Add(1)
			c.fallbacks.Add(1)
		} else {
			for k, data := range found {
				if payload, derr := decompressPayload(data); derr == nil {
					result[k] = payload
					c.hits.Add(1)
				}
			}
		}
	}

	for _, k := range rendered {
		if _, have := result[k]; have {
			continue
		}
		if data, found := c.memory.get(k); found {
			if payload, derr := decompressPayload(data); derr == nil {
				result[k] = payload
				c.hits.Add(1)
				continue
			}
		}
		c.misses.Add(1)
	}
	return result
}

// InvalidateRepo deletes every cached artifact for a repository across all
// kinds and both tiers. Returns the number of entries removed.
func (c *Cache) InvalidateRepo(ctx context.Context, repoURL string) int {
	if c.disabled {
		return 0
	}

	normalized := NormalizeRepoURL(repoURL)
	deleted := c.memory.deleteMatching(func(key string) bool {
		return keyMatchesRepo(key, normalized)
	})

	if c.redis != nil {
		n, err := c.redis.deleteMatching(ctx, RepoPrefix(repoURL), func(key string) bool {
			return keyMatchesRepo(key, normalized)
		})
		if err != nil {
			c.errors.Add(1)
			c.logger.Warn("distributed invalidation failed", "repo", normalized, "error", err)
		} else {
			deleted += int(n)
		}
	}

	c.logger.Info("repository cache invalidated", "repo", normalized, "entries", deleted)
	return deleted
}

// keyMatchesRepo reports whether a rendered key's repo segment equals the
// normalized repo. Keys are "<prefix>:<kind>:<repo...>" where the repo itself
// may contain colons, so the check is prefix-based after the kind segment.
func keyMatchesRepo(key, normalizedRepo string) bool {
	rest, ok := cutPrefixSegment(key, keyPrefix)
	if !ok {
		return false
	}
	rest, ok = cutAnySegment(rest)
	if !ok {
		return false
	}
	return rest == normalizedRepo ||
		len(rest) > len(normalizedRepo) && rest[:len(normalizedRepo)] == normalizedRepo && rest[len(normalizedRepo)] == ':'
}

func cutPrefixSegment(s, prefix string) (string, bool) {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix && s[len(prefix)] == ':' {
		return s[len(prefix)+1:], true
	}
	return s, false
}

func cutAnySegment(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[i+1:], true
		}
	}
	return s, false
}

// HealthCheck verifies the distributed tier; the in-process tier is always
// healthy
func (c *Cache) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("distributed tier not connected")
	}
	return c.redis.healthCheck(ctx)
}

// Close releases the distributed connection
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.close()
	}
	return nil
}

// Stats returns a snapshot of cache counters
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	s := Stats{
		Hits:            hits,
		Misses:          misses,
		Errors:          c.errors.Load(),
		MemoryFallbacks: c.fallbacks.Load(),
		Compressions:    c.compressions.Load(),
		MemoryEntries:   c.memory.len(),
		RedisConnected:  c.redis != nil,
	}
	if hits > 0 {
		s.AvgHitLatency = time.Duration(c.hitLatencyNs.Load() / hits)
	}
	if misses > 0 {
		s.AvgMissLatency = time.Duration(c.missLatencyNs.Load() / misses)
	}
	return s
}

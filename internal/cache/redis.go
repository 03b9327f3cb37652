package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTier wraps the distributed cache backend
type redisTier struct {
	client *redis.Client
	logger *slog.Logger
}

var _ distTier = (*redisTier)(nil)

// newRedisTier connects to Redis and verifies connectivity. A connection
// failure is returned to the caller, which degrades to memory-only.
func newRedisTier(ctx context.Context, host string, port int, password string) (*redisTier, error) {
	if host == "" {
		return nil, fmt.Errorf("redis host missing")
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger := slog.Default().With("component", "redis")
	logger.Info("redis client connected", "addr", addr)

	return &redisTier{client: client, logger: logger}, nil
}

func (r *redisTier) close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// healthCheck verifies connectivity
func (r *redisTier) healthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// get retrieves raw bytes. A miss returns (nil, false, nil).
func (r *redisTier) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	return val, true, nil
}

// getMulti retrieves several keys in one round trip; absent keys are omitted
// from the result map
func (r *redisTier) getMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	found := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		switch data := v.(type) {
		case string:
			found[keys[i]] = []byte(data)
		case []byte:
			found[keys[i]] = data
		}
	}
	return found, nil
}

// set stores raw bytes with a TTL
func (r *redisTier) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}
	return nil
}

// deleteMatching scans keys by glob pattern, keeps those accepted by the
// exact-match predicate, and deletes them. The glob narrows the scan; the
// predicate prevents over-deletion (repo* would also catch repo2).
func (r *redisTier) deleteMatching(ctx context.Context, pattern string, match func(key string) bool) (int64, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan failed for pattern %s: %w", pattern, err)
		}
		for _, k := range batch {
			if match(k) {
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed for pattern %s: %w", pattern, err)
	}

	r.logger.Info("cache pattern delete", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dentix-ortho/agent-oracle/pkg/logging"
)

// Cache stores Tier 2 results in Redis keyed by utterance hash, so repeated
// agent utterances across runs do not pay LLM latency twice. Tier 1 results
// are never cached; the pattern tier is already deterministic and cheap.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCache builds a classification cache. A nil redis client yields a nil
// Cache, which is safe to use and caches nothing.
func NewCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(utterance string) string {
	sum := sha256.Sum256([]byte(utterance))
	return "oracle:classify:" + hex.EncodeToString(sum[:])
}

// Get returns a cached result if present. Cache failures are logged and
// treated as misses; classification must never fail on cache trouble.
func (c *Cache) Get(ctx context.Context, utterance string) (Result, bool) {
	if c == nil {
		return Result{}, false
	}
	data, err := c.rdb.Get(ctx, cacheKey(utterance)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("classifier cache read failed", "error", err)
		}
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false
	}
	return res, true
}

// Put stores a Tier 2 result.
func (c *Cache) Put(ctx context.Context, utterance string, res Result) {
	if c == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(utterance), data, c.ttl).Err(); err != nil {
		c.logger.Warn("classifier cache write failed", "error", err)
	}
}

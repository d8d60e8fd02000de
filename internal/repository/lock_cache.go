package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"vigia_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	lockCacheKeyPrefix = "track_progress:locks:"
	lockGenKeyPrefix   = "track_progress:locks_gen:"
	minLockGenTTL      = 24 * time.Hour
)

// RedisLockCache keeps computed sequence lock maps per track progress. Each
// entry carries the generation it was computed under; Invalidate bumps the
// generation so entries computed from older rows are never served.
type RedisLockCache struct {
	Client *redis.Client
	TTL    time.Duration
}

type lockEntry struct {
	Gen   int64         `json:"gen"`
	Locks map[uint]bool `json:"locks"`
}

func NewRedisLockCache(client *redis.Client, ttl time.Duration) *RedisLockCache {
	return &RedisLockCache{Client: client, TTL: ttl}
}

func lockCacheKey(trackProgressID uint) string {
	return fmt.Sprintf("%s%d", lockCacheKeyPrefix, trackProgressID)
}

func lockGenKey(trackProgressID uint) string {
	return fmt.Sprintf("%s%d", lockGenKeyPrefix, trackProgressID)
}

// genTTL outlives every entry so a generation never resets under a live entry.
func (c *RedisLockCache) genTTL() time.Duration {
	if ttl := 2 * c.TTL; ttl > minLockGenTTL {
		return ttl
	}
	return minLockGenTTL
}

func (c *RedisLockCache) Get(ctx context.Context, trackProgressID uint) (map[uint]bool, int64, bool) {
	vals, err := c.Client.MGet(ctx, lockCacheKey(trackProgressID), lockGenKey(trackProgressID)).Result()
	if err != nil || len(vals) != 2 {
		logger.Log.Warn("lock cache read failed", zap.Uint("track_progress_id", trackProgressID), zap.Error(err))
		return nil, -1, false
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		gen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, -1, false
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var entry lockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Gen != gen {
		return nil, gen, false
	}
	return entry.Locks, gen, true
}

func (c *RedisLockCache) Set(ctx context.Context, trackProgressID uint, gen int64, locks map[uint]bool) {
	data, err := json.Marshal(lockEntry{Gen: gen, Locks: locks})
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, lockCacheKey(trackProgressID), data, c.TTL).Err(); err != nil {
		logger.Log.Warn("lock cache write failed", zap.Uint("track_progress_id", trackProgressID), zap.Error(err))
	}
}

func (c *RedisLockCache) Invalidate(ctx context.Context, trackProgressID uint) {
	pipe := c.Client.TxPipeline()
	pipe.Incr(ctx, lockGenKey(trackProgressID))
	pipe.Expire(ctx, lockGenKey(trackProgressID), c.genTTL())
	pipe.Del(ctx, lockCacheKey(trackProgressID))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("lock cache invalidate failed", zap.Uint("track_progress_id", trackProgressID), zap.Error(err))
	}
}

// NoopLockCache is used when redis is disabled.
type NoopLockCache struct{}

func (NoopLockCache) Get(context.Context, uint) (map[uint]bool, int64, bool) { return nil, -1, false }
func (NoopLockCache) Set(context.Context, uint, int64, map[uint]bool)        {}
func (NoopLockCache) Invalidate(context.Context, uint)                       {}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/db"
)

const (
	fieldCount         = "count"
	fieldLastOffenseAt = "last_offense_at"
	fieldStrictMode    = "strict_mode"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
)

var toggleStrictScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'strict_mode')
local flipped = 1
if current == '1' then
	flipped = 0
end
redis.call('HSET', KEYS[1], 'strict_mode', flipped, 'updated_at', ARGV[1])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[1])
return flipped
`)

type redisClient struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisClient(ctx context.Context, url string, prefix string) (*redisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.WithFields(log.Fields{"object": "RedisClient", "addr": opts.Addr, "db": opts.DB}).Info("connected to redis")

	return &redisClient{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}

func (c *redisClient) key(parts ...any) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + fmt.Sprint(p)
	}
	return k
}

func (c *redisClient) GetStrikes(ctx context.Context, chatID, userID int64) (int, error) {
	count, err := c.rdb.HGet(ctx, c.key("strikes", chatID, userID), fieldCount).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get strikes for %d/%d: %w", chatID, userID, err)
	}
	return count, nil
}

// IncrementStrikes bumps the counter and refreshes the expiry inside MULTI/EXEC.
// A key that expired is gone, so the counter restarts from 1.
func (c *redisClient) IncrementStrikes(ctx context.Context, chatID, userID int64, ttl time.Duration) (int, error) {
	key := c.key("strikes", chatID, userID)
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldCount, 1)
		pipe.HSet(ctx, key, fieldLastOffenseAt, c.now().UnixMilli())
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment strikes for %d/%d: %w", chatID, userID, err)
	}
	return int(incr.Val()), nil
}

func (c *redisClient) ResetStrikes(ctx context.Context, chatID, userID int64) error {
	if err := c.rdb.Del(ctx, c.key("strikes", chatID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to reset strikes for %d/%d: %w", chatID, userID, err)
	}
	return nil
}

func (c *redisClient) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := c.rdb.SetNX(ctx, c.key("dedup", key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s processed: %w", key, err)
	}
	return first, nil
}

func (c *redisClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	key := c.key("chat", chatID)
	now := strconv.FormatInt(c.now().UnixMilli(), 10)

	var all *redis.MapStringStringCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldStrictMode, 0)
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)
		pipe.HSetNX(ctx, key, fieldUpdatedAt, now)
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get settings for %d: %w", chatID, err)
	}

	values := all.Val()
	return &db.Settings{
		ID:         chatID,
		StrictMode: values[fieldStrictMode] == "1",
		CreatedAt:  parseMillis(values[fieldCreatedAt]),
		UpdatedAt:  parseMillis(values[fieldUpdatedAt]),
	}, nil
}

func (c *redisClient) ToggleStrictMode(ctx context.Context, chatID int64) (bool, error) {
	next, err := toggleStrictScript.Run(ctx, c.rdb, []string{c.key("chat", chatID)}, c.now().UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to toggle strict mode for %d: %w", chatID, err)
	}
	return next == 1, nil
}

func (c *redisClient) SetListEntry(ctx context.Context, chatID, userID int64, kind db.ListKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown list kind %q", kind)
	}
	if err := c.rdb.HSet(ctx, c.key("lists", chatID), strconv.FormatInt(userID, 10), string(kind)).Err(); err != nil {
		return fmt.Errorf("failed to set list entry for %d/%d: %w", chatID, userID, err)
	}
	return nil
}

func (c *redisClient) RemoveListEntry(ctx context.Context, chatID, userID int64) error {
	if err := c.rdb.HDel(ctx, c.key("lists", chatID), strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to remove list entry for %d/%d: %w", chatID, userID, err)
	}
	return nil
}

func (c *redisClient) GetListEntry(ctx context.Context, chatID, userID int64) (db.ListKind, error) {
	kind, err := c.rdb.HGet(ctx, c.key("lists", chatID), strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return db.ListNone, nil
	}
	if err != nil {
		return db.ListNone, fmt.Errorf("failed to get list entry for %d/%d: %w", chatID, userID, err)
	}
	return db.ListKind(kind), nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

package identity

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siohaza/warden/internal/failure"
)

const (
	fieldSteamID  = "steam_id"
	fieldValid    = "valid"
	fieldStoredAt = "stored_at"
)

// RedisCache stores one hash per player name so the mapping survives restarts
// and can be shared by several warden instances watching the same server.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, retention time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

func (c *RedisCache) key(name string) string {
	return c.prefix + name
}

func (c *RedisCache) Get(ctx context.Context, name string) (Entry, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.key(name)).Result()
	if err != nil {
		return Entry{}, false, failure.Transient("identity cache get", err)
	}
	steamID, ok := fields[fieldSteamID]
	if !ok || steamID == "" {
		return Entry{}, false, nil
	}

	e := Entry{SteamID: steamID, Valid: fields[fieldValid] == "1"}
	if ms, err := strconv.ParseInt(fields[fieldStoredAt], 10, 64); err == nil {
		e.StoredAt = time.UnixMilli(ms)
	}
	return e, true, nil
}

func (c *RedisCache) Put(ctx context.Context, name, steamID string) error {
	key := c.key(name)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldSteamID, steamID,
			fieldValid, "1",
			fieldStoredAt, strconv.FormatInt(time.Now().UnixMilli(), 10),
		)
		if c.retention > 0 {
			pipe.Expire(ctx, key, c.retention)
		}
		return nil
	})
	if err != nil {
		return failure.Transient("identity cache put", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, name string) error {
	key := c.key(name)
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return failure.Transient("identity cache invalidate", err)
	}
	if exists == 0 {
		return nil
	}
	if err := c.client.HSet(ctx, key, fieldValid, "0").Err(); err != nil {
		return failure.Transient("identity cache invalidate", err)
	}
	return nil
}

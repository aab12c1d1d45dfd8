package deck

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisRecent stores recently answered item ids in a capped Redis list per
// user so every API node excludes the same items.
type RedisRecent struct {
	client *goredis.Client
	prefix string
	window int64
	ttl    time.Duration
}

// NewRedisRecent creates a Redis-backed tracker.
func NewRedisRecent(client *goredis.Client, window int, ttl time.Duration) *RedisRecent {
	if window <= 0 {
		window = 20
	}
	return &RedisRecent{
		client: client,
		prefix: "lingo:recent:",
		window: int64(window),
		ttl:    ttl,
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisRecent) key(userID string) string {
	return r.prefix + userID
}

// Record pushes itemID to the front of the user's list and trims it.
func (r *RedisRecent) Record(ctx context.Context, userID, itemID string) error {
	key := r.key(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, key, 0, itemID)
		pipe.LPush(ctx, key, itemID)
		pipe.LTrim(ctx, key, 0, r.window-1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record recent item: %w", err)
	}
	return nil
}

// Recent returns the user's recent ids, most recent first.
func (r *RedisRecent) Recent(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.LRange(ctx, r.key(userID), 0, r.window-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent items: %w", err)
	}
	return ids, nil
}

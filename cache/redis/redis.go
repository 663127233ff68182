package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zlnvch/letterbox/logging"
)

type RedisLetterCache struct {
	client redis.UniversalClient
}

func NewRedisLetterCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisLetterCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisLetterCache{client: client}, nil
}

func NewRedisLetterCacheFromClient(client redis.UniversalClient) *RedisLetterCache {
	return &RedisLetterCache{client: client}
}

func (redisCache *RedisLetterCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

func (redisCache *RedisLetterCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		logging.Log.Printf("Pubsub channel closed: %s", channel)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func buildLastActiveKey(identityId string) string {
	return "identity:{" + identityId + "}:last_active"
}

func buildActionKey(identityId string, action string) string {
	return "identity:{" + identityId + "}:action:" + action
}

// Heartbeats outlive the longest inactivity condition so a cold cache never
// makes a sender look silent; the store remains the fallback.
const lastActiveTTL = 30 * 24 * time.Hour

func (redisCache *RedisLetterCache) SetLastActive(ctx context.Context, identityId string, at time.Time) error {
	key := buildLastActiveKey(identityId)
	pipe := redisCache.client.Pipeline()
	// GT keeps the newest heartbeat when they arrive out of order
	pipe.ZAddGT(ctx, key, redis.Z{Score: float64(at.Unix()), Member: "t"})
	pipe.Expire(ctx, key, lastActiveTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisLetterCache) GetLastActive(ctx context.Context, identityId string) (time.Time, error) {
	key := buildLastActiveKey(identityId)
	vals, err := redisCache.client.ZRangeWithScores(ctx, key, -1, -1).Result()
	if err != nil {
		return time.Time{}, err
	}
	if len(vals) == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(vals[0].Score), 0).UTC(), nil
}

func (redisCache *RedisLetterCache) IncrementActionCount(ctx context.Context, identityId string, action string, window time.Duration) (int64, error) {
	key := buildActionKey(identityId, action)
	count, err := redisCache.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := redisCache.client.Expire(ctx, key, window).Err(); err != nil {
			logging.Log.Warnf("Failed to set window on %s: %v", key, err)
		}
	}
	return count, nil
}

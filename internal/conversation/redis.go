package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "reviewbot:state:"

// RedisStore keeps states as JSON values whose key TTL is refreshed on every
// Set, so states survive restarts and expire without a sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis creates a client from a redis:// URL and verifies connectivity.
func DialRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func redisKey(chatID int64) string {
	return redisKeyPrefix + strconv.FormatInt(chatID, 10)
}

func (r *RedisStore) Get(ctx context.Context, chatID int64) (State, error) {
	raw, err := r.client.Get(ctx, redisKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("load state for chat %d: %w", chatID, err)
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		// unreadable state is as good as none
		_ = r.client.Del(ctx, redisKey(chatID)).Err()
		return State{}, ErrNoState
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, chatID int64, s State) error {
	s.UpdatedAt = time.Now()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(chatID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save state for chat %d: %w", chatID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, redisKey(chatID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear state for chat %d: %w", chatID, err)
	}
	return nil
}

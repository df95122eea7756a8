package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

// RedisStore keeps sorted sets in Redis ZSETs. Members are decimal user IDs.
type RedisStore struct {
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn(ctx, "redis ping failed", logger.Error(err))
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func member(id int64) string { return strconv.FormatInt(id, 10) }

func observeRedis(op string, start time.Time) {
	metrics.RecordStoreLatency(redisBackend, op, float64(time.Since(start).Microseconds())/1000)
}

// Upsert implements Store.Upsert with ZADD.
func (s *RedisStore) Upsert(ctx context.Context, key string, id int64, score float64) error {
	if key == "" {
		return ErrInvalidKey
	}
	if math.IsNaN(score) {
		return ErrInvalidScore
	}
	defer observeRedis("upsert", time.Now())

	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member(id)}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// Rank implements Store.Rank with ZREVRANK.
func (s *RedisStore) Rank(ctx context.Context, key string, id int64) (int, bool, error) {
	if key == "" {
		return 0, false, ErrInvalidKey
	}
	defer observeRedis("rank", time.Now())

	r, err := s.client.ZRevRank(ctx, key, member(id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zrevrank %s: %w", key, err)
	}
	return int(r) + 1, true, nil
}

// Score implements Store.Score with ZSCORE.
func (s *RedisStore) Score(ctx context.Context, key string, id int64) (float64, bool, error) {
	if key == "" {
		return 0, false, ErrInvalidKey
	}
	v, err := s.client.ZScore(ctx, key, member(id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s: %w", key, err)
	}
	return v, true, nil
}

// At implements Store.At with a single-element ZREVRANGE.
func (s *RedisStore) At(ctx context.Context, key string, index int) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrInvalidKey
	}
	if index < 0 {
		return Entry{}, false, nil
	}
	defer observeRedis("at", time.Now())

	zs, err := s.client.ZRevRangeWithScores(ctx, key, int64(index), int64(index)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	if len(zs) == 0 {
		return Entry{}, false, nil
	}
	e, err := toEntry(zs[0], index+1)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Remove implements Store.Remove with ZREM.
func (s *RedisStore) Remove(ctx context.Context, key string, id int64) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	n, err := s.client.ZRem(ctx, key, member(id)).Result()
	if err != nil {
		return false, fmt.Errorf("zrem %s: %w", key, err)
	}
	return n > 0, nil
}

// Count implements Store.Count with ZCARD.
func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return int(n), nil
}

// Top implements Store.Top with ZREVRANGE WITHSCORES.
func (s *RedisStore) Top(ctx context.Context, key string, n int) ([]Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	defer observeRedis("top", time.Now())

	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", key, err)
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		e, err := toEntry(z, i+1)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toEntry(z redis.Z, rank int) (Entry, error) {
	raw, ok := z.Member.(string)
	if !ok {
		return Entry{}, fmt.Errorf("unexpected zset member type %T", z.Member)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("zset member %q: %w", raw, err)
	}
	return Entry{Rank: rank, UserID: id, Score: z.Score}, nil
}

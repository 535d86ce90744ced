package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func optOutKey(phone string) string {
	return fmt.Sprintf("sms_opt_out:%s", phone)
}

// RedisOptOutStore caches opt-outs in Redis in front of an optional durable
// store. Opt-outs never expire.
type RedisOptOutStore struct {
	redis   *redis.Client
	durable OptOutStore
	logger  *logging.Logger
}

func NewRedisOptOutStore(client *redis.Client, durable OptOutStore, logger *logging.Logger) *RedisOptOutStore {
	if client == nil {
		panic("compliance: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisOptOutStore{redis: client, durable: durable, logger: logger}
}

func (s *RedisOptOutStore) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	n, err := s.redis.Exists(ctx, optOutKey(phone)).Result()
	if err != nil {
		return false, fmt.Errorf("compliance: opt-out cache lookup: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if s.durable == nil {
		return false, nil
	}
	optedOut, err := s.durable.IsOptedOut(ctx, phone)
	if err != nil {
		return false, err
	}
	if optedOut {
		if err := s.redis.Set(ctx, optOutKey(phone), "", 0).Err(); err != nil {
			s.logger.Warn("failed to warm opt-out cache", "error", err)
		}
	}
	return optedOut, nil
}

func (s *RedisOptOutStore) RecordOptOut(ctx context.Context, phone, personID string) error {
	if s.durable != nil {
		if err := s.durable.RecordOptOut(ctx, phone, personID); err != nil {
			return err
		}
	}
	if err := s.redis.Set(ctx, optOutKey(phone), personID, 0).Err(); err != nil {
		return fmt.Errorf("compliance: cache opt-out: %w", err)
	}
	return nil
}

func (s *RedisOptOutStore) ClearOptOut(ctx context.Context, phone string) error {
	if s.durable != nil {
		if err := s.durable.ClearOptOut(ctx, phone); err != nil {
			return err
		}
	}
	if err := s.redis.Del(ctx, optOutKey(phone)).Err(); err != nil {
		return fmt.Errorf("compliance: clear cached opt-out: %w", err)
	}
	return nil
}

const rateKeyTTL = 48 * time.Hour

// RedisRateLimiter keeps a per-number counter for each local calendar day.
type RedisRateLimiter struct {
	redis *redis.Client
	limit int
	loc   *time.Location
	now   func() time.Time
}

// NewRedisRateLimiter allows limit sends per number per day in loc. A
// non-positive limit disables the cap.
func NewRedisRateLimiter(client *redis.Client, limit int, loc *time.Location) *RedisRateLimiter {
	if client == nil {
		panic("compliance: redis client cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RedisRateLimiter{redis: client, limit: limit, loc: loc, now: time.Now}
}

func (l *RedisRateLimiter) key(phone string) string {
	return fmt.Sprintf("sms_rate:%s:%s", phone, l.now().In(l.loc).Format("20060102"))
}

func (l *RedisRateLimiter) Exceeded(ctx context.Context, phone string) (bool, error) {
	if l.limit <= 0 {
		return false, nil
	}
	n, err := l.redis.Get(ctx, l.key(phone)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compliance: read send counter: %w", err)
	}
	return n >= l.limit, nil
}

func (l *RedisRateLimiter) Increment(ctx context.Context, phone string) error {
	key := l.key(phone)
	pipe := l.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("compliance: bump send counter: %w", err)
	}
	return nil
}

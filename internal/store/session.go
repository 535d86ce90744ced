package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 72 * time.Hour

func sessionKey(leadID string) string {
	return fmt.Sprintf("agent_session:%s", leadID)
}

// RedisSessionStore keeps serialized per-lead agent sessions so a restart
// or another replica can resume a conversation.
type RedisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("store: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{redis: client, ttl: ttl}
}

func (s *RedisSessionStore) Save(ctx context.Context, leadID string, v any) error {
	ctx, span := tracer.Start(ctx, "store.session.save")
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(leadID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: persist session: %w", err)
	}
	return nil
}

// Load decodes the session into dst, reporting false when none is stored.
func (s *RedisSessionStore) Load(ctx context.Context, leadID string, dst any) (bool, error) {
	ctx, span := tracer.Start(ctx, "store.session.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(leadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("store: load session: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode session: %w", err)
	}
	return true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, leadID string) error {
	if err := s.redis.Del(ctx, sessionKey(leadID)).Err(); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

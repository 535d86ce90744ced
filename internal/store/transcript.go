package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Transcript roles.
const (
	RoleLead  = "lead"
	RoleAgent = "agent"
)

// TranscriptMessage is one line of a lead conversation.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Channel   string    `json:"channel,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore keeps a capped, expiring message list per lead.
type TranscriptStore struct {
	redis       *redis.Client
	maxMessages int64
	ttl         time.Duration
}

func NewTranscriptStore(client *redis.Client, ttl time.Duration) *TranscriptStore {
	if client == nil {
		panic("store: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &TranscriptStore{redis: client, maxMessages: 100, ttl: ttl}
}

func transcriptKey(leadID string) string {
	return fmt.Sprintf("transcript:%s", leadID)
}

func (s *TranscriptStore) Append(ctx context.Context, leadID string, msg TranscriptMessage) error {
	if leadID == "" {
		return errors.New("store: transcript lead id required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("store: marshal transcript message: %w", err)
	}

	ctx, span := tracer.Start(ctx, "store.transcript.append")
	defer span.End()

	key := transcriptKey(leadID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.maxMessages, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: append transcript: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest messages, oldest first.
func (s *TranscriptStore) Recent(ctx context.Context, leadID string, n int) ([]TranscriptMessage, error) {
	if n <= 0 {
		n = int(s.maxMessages)
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(leadID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read transcript: %w", err)
	}
	out := make([]TranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg TranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *TranscriptStore) Clear(ctx context.Context, leadID string) error {
	if err := s.redis.Del(ctx, transcriptKey(leadID)).Err(); err != nil {
		return fmt.Errorf("store: clear transcript: %w", err)
	}
	return nil
}

package agent

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wolfman30/realty-ai-agent/internal/qualification"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

const (
	defaultSessionCacheSize = 5000
	defaultSessionCacheTTL  = 24 * time.Hour
)

// session is the in-memory state for one lead.
type session struct {
	conversation  *ConversationManager
	qualification *qualification.Manager
}

// sessionRecord is what the session store persists.
type sessionRecord struct {
	Conversation  ConversationSnapshot `json:"conversation"`
	Qualification qualification.Data   `json:"qualification"`
}

func (s *session) record() sessionRecord {
	return sessionRecord{
		Conversation:  s.conversation.Snapshot(),
		Qualification: s.qualification.Snapshot(),
	}
}

// sessionCache keeps hot sessions in an expiring LRU in front of an
// optional durable store. Callers serialize work per lead.
type sessionCache struct {
	cache   *expirable.LRU[string, *session]
	store   SessionStore
	now     func() time.Time
	qualOps []qualification.ManagerOption
	logger  *logging.Logger
}

func newSessionCache(size int, ttl time.Duration, store SessionStore, now func() time.Time, logger *logging.Logger) *sessionCache {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	if ttl <= 0 {
		ttl = defaultSessionCacheTTL
	}
	return &sessionCache{
		cache:  expirable.NewLRU[string, *session](size, nil, ttl),
		store:  store,
		now:    now,
		logger: logger,
	}
}

// get returns the cached session, reloads it from the store, or starts a
// fresh one.
func (c *sessionCache) get(ctx context.Context, leadID string, maxQuestions int) *session {
	if s, ok := c.cache.Get(leadID); ok {
		return s
	}
	opts := append([]qualification.ManagerOption{qualification.WithMaxQuestions(maxQuestions), qualification.WithClock(c.now)}, c.qualOps...)

	if c.store != nil {
		var rec sessionRecord
		found, err := c.store.Load(ctx, leadID, &rec)
		if err != nil {
			c.logger.Warn("session reload failed, starting fresh", "lead_id", leadID, "error", err)
		}
		if found && err == nil {
			s := &session{
				conversation:  RestoreConversation(rec.Conversation, c.now),
				qualification: qualification.NewManagerFrom(leadID, rec.Qualification, opts...),
			}
			c.cache.Add(leadID, s)
			return s
		}
	}

	s := &session{
		conversation:  NewConversationManager(leadID, c.now),
		qualification: qualification.NewManager(leadID, opts...),
	}
	c.cache.Add(leadID, s)
	return s
}

// peek returns a session without creating one.
func (c *sessionCache) peek(ctx context.Context, leadID string) (*session, bool) {
	if s, ok := c.cache.Get(leadID); ok {
		return s, true
	}
	if c.store == nil {
		return nil, false
	}
	var rec sessionRecord
	found, err := c.store.Load(ctx, leadID, &rec)
	if err != nil || !found {
		return nil, false
	}
	s := &session{
		conversation:  RestoreConversation(rec.Conversation, c.now),
		qualification: qualification.NewManagerFrom(leadID, rec.Qualification, append([]qualification.ManagerOption{qualification.WithClock(c.now)}, c.qualOps...)...),
	}
	c.cache.Add(leadID, s)
	return s, true
}

// save writes the session through to the store. Failures are logged.
func (c *sessionCache) save(ctx context.Context, leadID string, s *session) {
	c.cache.Add(leadID, s)
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, leadID, s.record()); err != nil {
		c.logger.Warn("session save failed", "lead_id", leadID, "error", err)
	}
}

func (c *sessionCache) remove(ctx context.Context, leadID string) {
	c.cache.Remove(leadID)
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, leadID); err != nil {
		c.logger.Warn("session delete failed", "lead_id", leadID, "error", err)
	}
}

package agent

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

const (
	defaultSettingsCacheSize = 1000
	defaultSettingsTTL       = 5 * time.Minute
)

// CachedSettings resolves per-agent settings over a set of defaults,
// caching lookups for a short TTL and collapsing concurrent misses.
type CachedSettings struct {
	provider SettingsProvider
	defaults config.AgentSettings
	cache    *expirable.LRU[string, config.AgentSettings]
	group    singleflight.Group
	logger   *logging.Logger
}

// NewCachedSettings accepts a nil provider, in which case every lead gets
// the defaults.
func NewCachedSettings(provider SettingsProvider, defaults config.AgentSettings, ttl time.Duration, logger *logging.Logger) *CachedSettings {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = defaultSettingsTTL
	}
	return &CachedSettings{
		provider: provider,
		defaults: defaults,
		cache:    expirable.NewLRU[string, config.AgentSettings](defaultSettingsCacheSize, nil, ttl),
		logger:   logger.WithComponent("agent-settings"),
	}
}

// Get never fails; lookup errors degrade to the defaults and are not cached.
func (c *CachedSettings) Get(ctx context.Context, userID string) config.AgentSettings {
	if c.provider == nil || userID == "" {
		return c.defaults
	}
	if s, ok := c.cache.Get(userID); ok {
		return s
	}
	v, err, _ := c.group.Do(userID, func() (any, error) {
		s, err := c.provider.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		s = c.merge(s)
		c.cache.Add(userID, s)
		return s, nil
	})
	if err != nil {
		c.logger.Warn("settings lookup failed, using defaults", "user_id", userID, "error", err)
		return c.defaults
	}
	return v.(config.AgentSettings)
}

// Invalidate drops a cached entry after the settings row changes.
func (c *CachedSettings) Invalidate(userID string) {
	c.cache.Remove(userID)
}

// merge fills zero fields of s from the defaults. AIEnabled is taken as is.
func (c *CachedSettings) merge(s config.AgentSettings) config.AgentSettings {
	d := c.defaults
	if s.AgentName == "" {
		s.AgentName = d.AgentName
	}
	if s.BrokerageName == "" {
		s.BrokerageName = d.BrokerageName
	}
	if s.AutoScheduleScoreThreshold <= 0 {
		s.AutoScheduleScoreThreshold = d.AutoScheduleScoreThreshold
	}
	if s.AutoHandoffScoreThreshold <= 0 {
		s.AutoHandoffScoreThreshold = d.AutoHandoffScoreThreshold
	}
	if s.MaxQualificationQuestions <= 0 {
		s.MaxQualificationQuestions = d.MaxQualificationQuestions
	}
	if s.ResponseDelaySeconds <= 0 {
		s.ResponseDelaySeconds = d.ResponseDelaySeconds
	}
	return s
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/realty-ai-agent/internal/config"
)

// SettingsStore reads per-user agent settings, falling back to defaults
// for users without a row and for unset columns.
type SettingsStore struct {
	db       querier
	defaults config.AgentSettings
}

func NewSettingsStore(pool *pgxpool.Pool, defaults config.AgentSettings) *SettingsStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newSettingsStore(pool, defaults)
}

func newSettingsStore(db querier, defaults config.AgentSettings) *SettingsStore {
	return &SettingsStore{db: db, defaults: defaults}
}

func (s *SettingsStore) Get(ctx context.Context, userID string) (config.AgentSettings, error) {
	out := s.defaults
	out.UserID = userID
	if userID == "" {
		return out, nil
	}

	query := `
		SELECT COALESCE(ai_enabled, TRUE), COALESCE(agent_name, ''), COALESCE(brokerage_name, ''),
			COALESCE(auto_schedule_score_threshold, 0), COALESCE(auto_handoff_score_threshold, 0),
			COALESCE(max_qualification_questions, 0), COALESCE(response_delay_seconds, 0)
		FROM agent_settings
		WHERE user_id = $1
	`
	var (
		row                                            config.AgentSettings
		scheduleAt, handoffAt, maxQuestions, delaySecs int
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&row.AIEnabled, &row.AgentName, &row.BrokerageName, &scheduleAt, &handoffAt, &maxQuestions, &delaySecs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return config.AgentSettings{}, fmt.Errorf("store: load agent settings: %w", err)
	}

	out.AIEnabled = row.AIEnabled
	if row.AgentName != "" {
		out.AgentName = row.AgentName
	}
	if row.BrokerageName != "" {
		out.BrokerageName = row.BrokerageName
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&out.AutoScheduleScoreThreshold, scheduleAt)
	setInt(&out.AutoHandoffScoreThreshold, handoffAt)
	setInt(&out.MaxQualificationQuestions, maxQuestions)
	setInt(&out.ResponseDelaySeconds, delaySecs)
	return out, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChannelPreference is how and how often a lead wants to be contacted.
type ChannelPreference struct {
	LeadID           string    `json:"lead_id"`
	PreferredChannel string    `json:"preferred_channel,omitempty"`
	ContactFrequency string    `json:"contact_frequency,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PreferenceStore persists conversation channel preferences.
type PreferenceStore struct {
	db  querier
	now func() time.Time
}

func NewPreferenceStore(pool *pgxpool.Pool) *PreferenceStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newPreferenceStore(pool)
}

func newPreferenceStore(db querier) *PreferenceStore {
	return &PreferenceStore{db: db, now: time.Now}
}

func (s *PreferenceStore) SetPreferredChannel(ctx context.Context, leadID, channel string) error {
	query := `
		INSERT INTO conversation_preferences (lead_id, preferred_channel, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id) DO UPDATE
		SET preferred_channel = EXCLUDED.preferred_channel, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, leadID, channel, s.now().UTC()); err != nil {
		return fmt.Errorf("store: save preferred channel: %w", err)
	}
	return nil
}

func (s *PreferenceStore) SetContactFrequency(ctx context.Context, leadID, frequency string) error {
	query := `
		INSERT INTO conversation_preferences (lead_id, contact_frequency, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id) DO UPDATE
		SET contact_frequency = EXCLUDED.contact_frequency, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, leadID, frequency, s.now().UTC()); err != nil {
		return fmt.Errorf("store: save contact frequency: %w", err)
	}
	return nil
}

func (s *PreferenceStore) Get(ctx context.Context, leadID string) (ChannelPreference, error) {
	query := `
		SELECT lead_id, COALESCE(preferred_channel, ''), COALESCE(contact_frequency, ''), updated_at
		FROM conversation_preferences
		WHERE lead_id = $1
	`
	var p ChannelPreference
	err := s.db.QueryRow(ctx, query, leadID).Scan(&p.LeadID, &p.PreferredChannel, &p.ContactFrequency, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelPreference{}, ErrNotFound
	}
	if err != nil {
		return ChannelPreference{}, fmt.Errorf("store: load preferences: %w", err)
	}
	return p, nil
}

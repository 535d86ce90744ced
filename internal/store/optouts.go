package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OptOutStore is the durable record of unsubscribed and consenting numbers.
type OptOutStore struct {
	db  querier
	now func() time.Time
}

func NewOptOutStore(pool *pgxpool.Pool) *OptOutStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newOptOutStore(pool)
}

func newOptOutStore(db querier) *OptOutStore {
	return &OptOutStore{db: db, now: time.Now}
}

func (s *OptOutStore) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM sms_opt_outs WHERE phone = $1`, phone).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check opt-out: %w", err)
	}
	return true, nil
}

// RecordOptOut is idempotent; the first opt-out time is kept.
func (s *OptOutStore) RecordOptOut(ctx context.Context, phone, personID string) error {
	query := `
		INSERT INTO sms_opt_outs (phone, person_id, opted_out_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, phone, personID, s.now().UTC()); err != nil {
		return fmt.Errorf("store: record opt-out: %w", err)
	}
	return nil
}

func (s *OptOutStore) ClearOptOut(ctx context.Context, phone string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sms_opt_outs WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("store: clear opt-out: %w", err)
	}
	return nil
}

// RecordConsent upserts the latest consent decision for a number.
func (s *OptOutStore) RecordConsent(ctx context.Context, phone string, granted bool, source string) error {
	query := `
		INSERT INTO sms_consent (phone, granted, source, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET granted = EXCLUDED.granted, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, phone, granted, source, s.now().UTC()); err != nil {
		return fmt.Errorf("store: record consent: %w", err)
	}
	return nil
}

// HasConsent reports whether a number has an active consent row.
func (s *OptOutStore) HasConsent(ctx context.Context, phone string) (bool, error) {
	var granted bool
	err := s.db.QueryRow(ctx, `SELECT granted FROM sms_consent WHERE phone = $1`, phone).Scan(&granted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check consent: %w", err)
	}
	return granted, nil
}

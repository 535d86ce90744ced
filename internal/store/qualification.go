package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/realty-ai-agent/internal/qualification"
)

// QualificationRecord is the persisted qualification snapshot for a lead.
type QualificationRecord struct {
	LeadID    string
	PersonID  string
	State     string
	Data      qualification.Data
	UpdatedAt time.Time
}

// QualificationStore keeps the latest qualification snapshot per lead.
type QualificationStore struct {
	db  querier
	now func() time.Time
}

func NewQualificationStore(pool *pgxpool.Pool) *QualificationStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newQualificationStore(pool)
}

func newQualificationStore(db querier) *QualificationStore {
	return &QualificationStore{db: db, now: time.Now}
}

func (s *QualificationStore) Save(ctx context.Context, rec QualificationRecord) error {
	ctx, span := tracer.Start(ctx, "store.qualification.save")
	defer span.End()

	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("store: marshal qualification: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	query := `
		INSERT INTO lead_qualification (lead_id, person_id, state, score, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lead_id) DO UPDATE
		SET person_id = EXCLUDED.person_id,
			state = EXCLUDED.state,
			score = EXCLUDED.score,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query,
		rec.LeadID,
		rec.PersonID,
		rec.State,
		rec.Data.QualificationScore,
		payload,
		rec.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: save qualification: %w", err)
	}
	return nil
}

func (s *QualificationStore) Load(ctx context.Context, leadID string) (QualificationRecord, error) {
	query := `
		SELECT lead_id, COALESCE(person_id, ''), COALESCE(state, ''), data, updated_at
		FROM lead_qualification
		WHERE lead_id = $1
	`
	var (
		rec     QualificationRecord
		payload []byte
	)
	err := s.db.QueryRow(ctx, query, leadID).Scan(&rec.LeadID, &rec.PersonID, &rec.State, &payload, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return QualificationRecord{}, ErrNotFound
	}
	if err != nil {
		return QualificationRecord{}, fmt.Errorf("store: load qualification: %w", err)
	}
	if err := json.Unmarshal(payload, &rec.Data); err != nil {
		return QualificationRecord{}, fmt.Errorf("store: decode qualification: %w", err)
	}
	return rec, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
)

// ABTestStore records template variant assignments and their results.
type ABTestStore struct {
	db  querier
	now func() time.Time
}

func NewABTestStore(pool *pgxpool.Pool) *ABTestStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newABTestStore(pool)
}

func newABTestStore(db querier) *ABTestStore {
	return &ABTestStore{db: db, now: time.Now}
}

// LogAssignment inserts one row per lead, template and conversation.
func (s *ABTestStore) LogAssignment(ctx context.Context, a templates.ABAssignment) error {
	ctx, span := tracer.Start(ctx, "store.ab_tests.log_assignment")
	defer span.End()

	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.now().UTC()
	}
	query := `
		INSERT INTO ab_test_assignments (
			id, lead_id, conversation_id, template_id, variant_index, variant_count, assigned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id, template_id, conversation_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query,
		uuid.New(),
		a.LeadID,
		a.ConversationID,
		a.TemplateID,
		a.VariantIndex,
		a.VariantCount,
		a.AssignedAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store: log ab assignment: %w", err)
	}
	return nil
}

// RecordResponse flags the conversation's assignments as answered.
func (s *ABTestStore) RecordResponse(ctx context.Context, conversationID string) error {
	query := `
		UPDATE ab_test_assignments
		SET responded = TRUE, responded_at = $2
		WHERE conversation_id = $1 AND responded = FALSE
	`
	if _, err := s.db.Exec(ctx, query, conversationID, s.now().UTC()); err != nil {
		return fmt.Errorf("store: record ab response: %w", err)
	}
	return nil
}

func (s *ABTestStore) RecordOutcome(ctx context.Context, conversationID string, outcome templates.Outcome) error {
	query := `
		UPDATE ab_test_assignments
		SET outcome = $2, outcome_at = $3
		WHERE conversation_id = $1
	`
	if _, err := s.db.Exec(ctx, query, conversationID, string(outcome), s.now().UTC()); err != nil {
		return fmt.Errorf("store: record ab outcome: %w", err)
	}
	return nil
}

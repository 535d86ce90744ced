package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType names an agent decision worth keeping a record of.
type AuditEventType string

const (
	AuditHandoff           AuditEventType = "agent.handoff"
	AuditOptOut            AuditEventType = "agent.opt_out"
	AuditComplianceBlocked AuditEventType = "agent.compliance_blocked"
	AuditPipelineError     AuditEventType = "agent.pipeline_error"
	AuditSensitiveRedacted AuditEventType = "agent.sensitive_redacted"
)

// AuditEvent is an immutable audit row.
type AuditEvent struct {
	ID             string          `json:"id"`
	EventType      AuditEventType  `json:"event_type"`
	LeadID         string          `json:"lead_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UserMessage    string          `json:"user_message,omitempty"`
	AIResponse     string          `json:"ai_response,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditLog writes audit events through database/sql.
type AuditLog struct {
	db *sql.DB
}

func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	var details any
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	query := `
		INSERT INTO agent_audit_events (
			id, event_type, lead_id, conversation_id, user_message, ai_response, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := a.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		nullString(event.LeadID),
		nullString(event.ConversationID),
		nullString(event.UserMessage),
		nullString(event.AIResponse),
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: log audit event: %w", err)
	}
	return nil
}

// Record is LogEvent with details marshaled from a map.
func (a *AuditLog) Record(ctx context.Context, eventType AuditEventType, leadID, conversationID, userMessage, aiResponse string, details map[string]any) error {
	var raw json.RawMessage
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("store: marshal audit details: %w", err)
		}
		raw = b
	}
	return a.LogEvent(ctx, AuditEvent{
		EventType:      eventType,
		LeadID:         leadID,
		ConversationID: conversationID,
		UserMessage:    userMessage,
		AIResponse:     aiResponse,
		Details:        raw,
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

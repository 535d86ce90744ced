package agent

import (
	"context"

	"github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/crm"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/internal/objection"
	"github.com/wolfman30/realty-ai-agent/internal/store"
)

// IntentDetector classifies inbound messages.
type IntentDetector interface {
	Detect(ctx context.Context, message string, dctx *intent.Context, useLLMFallback bool) intent.DetectedIntent
}

// ComplianceChecker gates SMS sends and records unsubscribes.
type ComplianceChecker interface {
	CheckSendAllowed(ctx context.Context, phone, personID string) (compliance.Result, error)
	RecordOptOut(ctx context.Context, phone, personID string) error
	ClearOptOut(ctx context.Context, phone string) error
}

// consentRecorder is implemented by checkers that persist intake consent.
type consentRecorder interface {
	RecordConsent(ctx context.Context, phone string, granted bool, source string) error
}

type ObjectionHandler interface {
	ClassifyObjection(intentName string) (objection.Type, bool)
	Handle(ctx context.Context, t objection.Type, octx objection.Context, leadID string) (objection.Result, error)
	Reset(leadID string)
}

type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, req llm.GenerateRequest) (*llm.GeneratedResponse, error)
}

// PreferenceStore persists channel preferences.
type PreferenceStore interface {
	SetPreferredChannel(ctx context.Context, leadID, channel string) error
	SetContactFrequency(ctx context.Context, leadID, frequency string) error
}

// CRMSyncer pushes qualification snapshots to the CRM.
type CRMSyncer interface {
	SyncQualification(ctx context.Context, req crm.SyncRequest) error
}

// SettingsProvider loads per-agent overrides.
type SettingsProvider interface {
	Get(ctx context.Context, userID string) (config.AgentSettings, error)
}

// SessionStore persists serialized sessions across restarts.
type SessionStore interface {
	Save(ctx context.Context, leadID string, v any) error
	Load(ctx context.Context, leadID string, dst any) (bool, error)
	Delete(ctx context.Context, leadID string) error
}

// TranscriptStore keeps recent conversation lines for prompt history.
type TranscriptStore interface {
	Append(ctx context.Context, leadID string, msg store.TranscriptMessage) error
	Recent(ctx context.Context, leadID string, n int) ([]store.TranscriptMessage, error)
	Clear(ctx context.Context, leadID string) error
}

type AuditLogger interface {
	Record(ctx context.Context, eventType store.AuditEventType, leadID, conversationID, userMessage, aiResponse string, details map[string]any) error
}

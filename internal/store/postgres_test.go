package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
	"github.com/wolfman30/realty-ai-agent/internal/qualification"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestABTestStore(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	fixed := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	store := newABTestStore(mock)
	store.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO ab_test_assignments").
		WithArgs(pgxmock.AnyArg(), "lead-1", "conv-1", templates.WelcomeGeneric, 1, 3, fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE ab_test_assignments").
		WithArgs("conv-1", fixed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE ab_test_assignments").
		WithArgs("conv-1", "qualified", fixed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.LogAssignment(ctx, templates.ABAssignment{
		LeadID:         "lead-1",
		ConversationID: "conv-1",
		TemplateID:     templates.WelcomeGeneric,
		VariantIndex:   1,
		VariantCount:   3,
	}))
	require.NoError(t, store.RecordResponse(ctx, "conv-1"))
	require.NoError(t, store.RecordOutcome(ctx, "conv-1", templates.OutcomeQualified))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestABTestStore_WrapsErrors(t *testing.T) {
	mock := newMockPool(t)
	store := newABTestStore(mock)
	boom := errors.New("connection reset")
	mock.ExpectExec("UPDATE ab_test_assignments").
		WithArgs("conv-1", pgxmock.AnyArg()).
		WillReturnError(boom)

	err := store.RecordResponse(context.Background(), "conv-1")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "store: record ab response")
}

func TestPreferenceStore(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	fixed := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	store := newPreferenceStore(mock)
	store.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO conversation_preferences").
		WithArgs("lead-1", "email", fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO conversation_preferences").
		WithArgs("lead-1", "weekly", fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM conversation_preferences").
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"lead_id", "preferred_channel", "contact_frequency", "updated_at"}).
			AddRow("lead-1", "email", "weekly", fixed))
	mock.ExpectQuery("FROM conversation_preferences").
		WithArgs("lead-2").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, store.SetPreferredChannel(ctx, "lead-1", "email"))
	require.NoError(t, store.SetContactFrequency(ctx, "lead-1", "weekly"))

	pref, err := store.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, ChannelPreference{LeadID: "lead-1", PreferredChannel: "email", ContactFrequency: "weekly", UpdatedAt: fixed}, pref)

	_, err = store.Get(ctx, "lead-2")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQualificationStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	fixed := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	store := newQualificationStore(mock)
	store.now = func() time.Time { return fixed }

	data := qualification.Data{QualificationScore: 45}
	payload, err := json.Marshal(data)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lead_qualification").
		WithArgs("lead-1", "person-1", "qualifying", 45, payload, fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM lead_qualification").
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"lead_id", "person_id", "state", "data", "updated_at"}).
			AddRow("lead-1", "person-1", "qualifying", payload, fixed))
	mock.ExpectQuery("FROM lead_qualification").
		WithArgs("lead-2").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, store.Save(ctx, QualificationRecord{
		LeadID:   "lead-1",
		PersonID: "person-1",
		State:    "qualifying",
		Data:     data,
	}))

	rec, err := store.Load(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "person-1", rec.PersonID)
	assert.Equal(t, "qualifying", rec.State)
	assert.Equal(t, 45, rec.Data.QualificationScore)
	assert.Equal(t, fixed, rec.UpdatedAt)

	_, err = store.Load(ctx, "lead-2")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsStore_Get(t *testing.T) {
	ctx := context.Background()
	defaults := config.AgentSettings{
		AIEnabled:                  true,
		AgentName:                  "Realty Team",
		AutoScheduleScoreThreshold: 70,
		AutoHandoffScoreThreshold:  85,
		MaxQualificationQuestions:  5,
		ResponseDelaySeconds:       2,
	}
	columns := []string{"ai_enabled", "agent_name", "brokerage_name", "schedule", "handoff", "max_questions", "delay"}

	t.Run("no row uses defaults", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("FROM agent_settings").WithArgs("user-1").WillReturnError(pgx.ErrNoRows)

		got, err := newSettingsStore(mock, defaults).Get(ctx, "user-1")
		require.NoError(t, err)
		want := defaults
		want.UserID = "user-1"
		assert.Equal(t, want, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row overrides set columns", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("FROM agent_settings").
			WithArgs("user-2").
			WillReturnRows(pgxmock.NewRows(columns).AddRow(false, "Dana", "", 60, 0, 0, 0))

		got, err := newSettingsStore(mock, defaults).Get(ctx, "user-2")
		require.NoError(t, err)
		assert.False(t, got.AIEnabled)
		assert.Equal(t, "Dana", got.AgentName)
		assert.Equal(t, 60, got.AutoScheduleScoreThreshold)
		assert.Equal(t, 85, got.AutoHandoffScoreThreshold)
		assert.Equal(t, 5, got.MaxQualificationQuestions)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blank user skips the query", func(t *testing.T) {
		mock := newMockPool(t)
		got, err := newSettingsStore(mock, defaults).Get(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, defaults, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOptOutStore(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	fixed := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	store := newOptOutStore(mock)
	store.now = func() time.Time { return fixed }
	phone := "+15125550199"

	mock.ExpectQuery("SELECT 1 FROM sms_opt_outs").WithArgs(phone).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO sms_opt_outs").
		WithArgs(phone, "person-1", fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT 1 FROM sms_opt_outs").
		WithArgs(phone).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectExec("DELETE FROM sms_opt_outs").
		WithArgs(phone).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("SELECT granted FROM sms_consent").
		WithArgs(phone).
		WillReturnRows(pgxmock.NewRows([]string{"granted"}).AddRow(true))
	mock.ExpectQuery("SELECT granted FROM sms_consent").
		WithArgs("+15125550100").
		WillReturnError(pgx.ErrNoRows)

	optedOut, err := store.IsOptedOut(ctx, phone)
	require.NoError(t, err)
	assert.False(t, optedOut)

	require.NoError(t, store.RecordOptOut(ctx, phone, "person-1"))

	optedOut, err = store.IsOptedOut(ctx, phone)
	require.NoError(t, err)
	assert.True(t, optedOut)

	require.NoError(t, store.ClearOptOut(ctx, phone))

	consented, err := store.HasConsent(ctx, phone)
	require.NoError(t, err)
	assert.True(t, consented)

	consented, err = store.HasConsent(ctx, "+15125550100")
	require.NoError(t, err)
	assert.False(t, consented)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptOutStore_RecordConsent(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	fixed := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	store := newOptOutStore(mock)
	store.now = func() time.Time { return fixed }
	phone := "+15125550199"

	mock.ExpectExec("INSERT INTO sms_consent").
		WithArgs(phone, true, "zillow", fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT granted FROM sms_consent").
		WithArgs(phone).
		WillReturnRows(pgxmock.NewRows([]string{"granted"}).AddRow(true))
	mock.ExpectExec("INSERT INTO sms_consent").
		WithArgs(phone, false, "zillow", fixed).
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, store.RecordConsent(ctx, phone, true, "zillow"))
	consented, err := store.HasConsent(ctx, phone)
	require.NoError(t, err)
	assert.True(t, consented)

	err = store.RecordConsent(ctx, phone, false, "zillow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: record consent")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLog_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO agent_audit_events").
		WithArgs(sqlmock.AnyArg(), "agent.handoff", "lead-1", "conv-1", "call me", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	audit := NewAuditLog(db)
	err = audit.Record(context.Background(), AuditHandoff, "lead-1", "conv-1", "call me", "", map[string]any{"reason": "requested_call"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLog_WrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectExec("INSERT INTO agent_audit_events").WillReturnError(boom)

	err = NewAuditLog(db).LogEvent(context.Background(), AuditEvent{EventType: AuditOptOut})
	assert.ErrorIs(t, err, boom)
}

// Package agent orchestrates one lead conversation turn: compliance gate,
// intent detection, qualification, objection handling, reply generation
// with template fallback, scoring and handoff.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/crm"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
	"github.com/wolfman30/realty-ai-agent/internal/objection"
	"github.com/wolfman30/realty-ai-agent/internal/observability/metrics"
	"github.com/wolfman30/realty-ai-agent/internal/qualification"
	"github.com/wolfman30/realty-ai-agent/internal/store"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/agent")

const (
	defaultSyncTimeout = 10 * time.Second
	historyWindow      = 20
	objectionLimit     = 3

	reasonEscalation = "Lead asked for a human agent"
	reasonFrustrated = "Lead frustration detected"
	reasonProfanity  = "Profanity detected"
	reasonObjections = "Multiple objections"
	reasonHighScore  = "High lead score"
	reasonAgentAsked = "Reply generator requested handoff"
	reasonError      = "Processing error"
)

// Service runs the conversation pipeline. It is safe for concurrent use
// across leads; messages for the same lead must be serialized by the
// caller.
type Service struct {
	detector    IntentDetector
	templates   *templates.Engine
	compliance  ComplianceChecker
	objections  ObjectionHandler
	generator   ResponseGenerator
	preferences PreferenceStore
	crm         CRMSyncer
	transcripts TranscriptStore
	audit       AuditLogger
	metrics     *metrics.AgentMetrics
	keywords    *compliance.Detector
	settings    *CachedSettings
	sessions    *sessionCache
	now         func() time.Time
	newID       func() string
	syncTimeout time.Duration
	logger      *logging.Logger
	wg          sync.WaitGroup

	settingsProvider SettingsProvider
	settingsTTL      time.Duration
	defaults         config.AgentSettings
	sessionStore     SessionStore
	sessionSize      int
	sessionTTL       time.Duration
	qualOpts         []qualification.ManagerOption
}

type Option func(*Service)

func WithComplianceChecker(c ComplianceChecker) Option {
	return func(s *Service) { s.compliance = c }
}

func WithObjectionHandler(h ObjectionHandler) Option {
	return func(s *Service) { s.objections = h }
}

func WithResponseGenerator(g ResponseGenerator) Option {
	return func(s *Service) { s.generator = g }
}

func WithPreferenceStore(p PreferenceStore) Option {
	return func(s *Service) { s.preferences = p }
}

func WithCRMSyncer(c CRMSyncer) Option {
	return func(s *Service) { s.crm = c }
}

func WithTranscripts(t TranscriptStore) Option {
	return func(s *Service) { s.transcripts = t }
}

func WithAuditLog(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m *metrics.AgentMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSettings sets the per-agent settings source and its cache TTL.
func WithSettings(p SettingsProvider, ttl time.Duration) Option {
	return func(s *Service) {
		s.settingsProvider = p
		s.settingsTTL = ttl
	}
}

// WithDefaults replaces the settings used when no per-agent row exists.
func WithDefaults(d config.AgentSettings) Option {
	return func(s *Service) { s.defaults = d }
}

func WithSessionStore(st SessionStore) Option {
	return func(s *Service) { s.sessionStore = st }
}

func WithSessionCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionSize = size
		s.sessionTTL = ttl
	}
}

func WithQualificationOptions(opts ...qualification.ManagerOption) Option {
	return func(s *Service) { s.qualOpts = append(s.qualOpts, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// DefaultSettings mirrors the environment defaults of config.Load.
func DefaultSettings() config.AgentSettings {
	return config.AgentSettings{
		AIEnabled:                  true,
		AutoScheduleScoreThreshold: 70,
		AutoHandoffScoreThreshold:  85,
		MaxQualificationQuestions:  10,
		ResponseDelaySeconds:       30,
	}
}

func NewService(detector IntentDetector, engine *templates.Engine, logger *logging.Logger, opts ...Option) *Service {
	if detector == nil {
		panic("agent: intent detector cannot be nil")
	}
	if engine == nil {
		panic("agent: template engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		detector:    detector,
		templates:   engine,
		keywords:    compliance.NewDetector(),
		now:         time.Now,
		newID:       uuid.NewString,
		syncTimeout: defaultSyncTimeout,
		defaults:    DefaultSettings(),
		logger:      logger.WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.settings = NewCachedSettings(s.settingsProvider, s.defaults, s.settingsTTL, s.logger)
	s.sessions = newSessionCache(s.sessionSize, s.sessionTTL, s.sessionStore, s.now, s.logger)
	s.sessions.qualOps = s.qualOpts
	return s
}

// Wait blocks until background CRM syncs finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// ProcessMessage runs the full pipeline for one inbound message. It never
// returns nil; failures come back as a ResultError response asking for a
// human handoff.
func (s *Service) ProcessMessage(ctx context.Context, req MessageRequest) *Response {
	return s.run(ctx, "agent.process_message", req.Lead, req.Channel, req.Message, func(ctx context.Context, resp *Response) error {
		return s.processMessage(ctx, req, resp)
	})
}

// ProcessNewLead produces the welcome message for a lead that has not
// written in yet.
func (s *Service) ProcessNewLead(ctx context.Context, req NewLeadRequest) *Response {
	return s.run(ctx, "agent.process_new_lead", req.Lead, req.Channel, "", func(ctx context.Context, resp *Response) error {
		return s.processNewLead(ctx, req, resp)
	})
}

func (s *Service) run(ctx context.Context, spanName string, lead LeadProfile, channel Channel, message string, fn func(context.Context, *Response) error) (resp *Response) {
	start := s.now()
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	if channel == "" {
		channel = ChannelSMS
	}
	span.SetAttributes(
		attribute.String("agent.lead_id", lead.ID),
		attribute.String("agent.channel", string(channel)),
	)

	resp = &Response{
		ResponseID:        s.newID(),
		LeadID:            lead.ID,
		Channel:           channel,
		Result:            ResultSuccess,
		ConversationState: StateInitial,
		CreatedAt:         start.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent: panic: %v", r)
			s.logger.Error("pipeline panic", "lead_id", lead.ID, "panic", r, "stack", string(debug.Stack()))
			resp = s.errorResponse(ctx, span, resp, lead, message, err)
		}
		elapsed := s.now().Sub(start)
		resp.ResponseTimeMS = elapsed.Milliseconds()
		span.SetAttributes(attribute.String("agent.result", string(resp.Result)))
		s.metrics.ObserveProcessed(string(resp.Result), string(channel), elapsed.Seconds())
	}()

	if err := fn(ctx, resp); err != nil {
		resp = s.errorResponse(ctx, span, resp, lead, message, err)
	}
	return resp
}

func (s *Service) errorResponse(ctx context.Context, span trace.Span, prev *Response, lead LeadProfile, message string, err error) *Response {
	span.RecordError(err)
	s.logger.Error("pipeline failed", "lead_id", lead.ID, "error", err)

	out := &Response{
		ResponseID:        prev.ResponseID,
		LeadID:            prev.LeadID,
		Channel:           prev.Channel,
		Result:            ResultError,
		ConversationState: prev.ConversationState,
		ShouldHandoff:     true,
		HandoffReason:     reasonError,
		ErrorMessage:      err.Error(),
		CreatedAt:         prev.CreatedAt,
	}
	out.ResponseText = s.safeErrorText(ctx, lead)
	s.metrics.ObserveHandoff("error")
	redacted, _ := compliance.Redact(message)
	s.recordAudit(ctx, store.AuditPipelineError, lead.ID, "", redacted, out.ResponseText, map[string]any{"error": err.Error()})
	return out
}

// safeErrorText renders the error handoff line without letting a template
// failure escape the recovery path.
func (s *Service) safeErrorText(ctx context.Context, lead LeadProfile) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	return s.templates.HandoffMessage(ctx, lead.recipient("", s.defaults), templates.HandoffKindError)
}

func (s *Service) processNewLead(ctx context.Context, req NewLeadRequest, resp *Response) error {
	lead := req.Lead
	if strings.TrimSpace(lead.ID) == "" {
		return errors.New("agent: lead id required")
	}
	s.recordConsent(ctx, lead)
	settings := s.settings.Get(ctx, lead.UserID)
	resp.ResponseDelaySeconds = settings.ResponseDelaySeconds
	if !settings.AIEnabled {
		resp.Result = ResultSkipped
		return nil
	}

	if resp.Channel == ChannelSMS && s.blockedBySMSCompliance(ctx, lead, "", resp) {
		return nil
	}

	// A new-lead event starts the conversation over from INITIAL.
	if _, ok := s.sessions.peek(ctx, lead.ID); ok {
		s.ResetConversation(ctx, lead.ID)
	}
	sess := s.sessions.get(ctx, lead.ID, settings.MaxQualificationQuestions)
	defer s.commit(ctx, lead.ID, sess, resp)
	s.seedFromProfile(sess, lead)

	convID := req.ConversationID
	if convID == "" {
		convID = lead.ID
	}
	resp.ResponseText = s.templates.WelcomeMessage(ctx, lead.recipient(convID, settings))
	s.score(resp, sess, settings, sess.qualification.Snapshot().QualificationScore, 0)
	resp.ConversationState = sess.conversation.State()
	s.syncCRM(ctx, lead, sess, "")
	return nil
}

func (s *Service) processMessage(ctx context.Context, req MessageRequest, resp *Response) error {
	lead := req.Lead
	if strings.TrimSpace(lead.ID) == "" {
		return errors.New("agent: lead id required")
	}

	// 1. settings
	settings := s.settings.Get(ctx, lead.UserID)
	resp.ResponseDelaySeconds = settings.ResponseDelaySeconds
	if !settings.AIEnabled {
		resp.Result = ResultSkipped
		return nil
	}

	// 2. compliance gate
	if resp.Channel == ChannelSMS && s.blockedBySMSCompliance(ctx, lead, req.Message, resp) {
		return nil
	}

	convID := req.conversationID()
	recipient := lead.recipient(convID, settings)
	redacted, wasRedacted := compliance.Redact(req.Message)
	if wasRedacted {
		s.recordAudit(ctx, store.AuditSensitiveRedacted, lead.ID, convID, redacted, "", nil)
	}

	sess := s.sessions.get(ctx, lead.ID, settings.MaxQualificationQuestions)
	defer s.commit(ctx, lead.ID, sess, resp)
	conv, qual := sess.conversation, sess.qualification
	s.seedFromProfile(sess, lead)

	prevScore := qual.Snapshot().QualificationScore
	wasQualified := qual.Progress().IsMinimallyQualified
	conv.RecordInbound()
	s.templates.RecordABTestResponse(ctx, convID)
	s.appendTranscript(ctx, lead.ID, store.RoleLead, resp.Channel, redacted)

	// 3. intent
	detected := s.detector.Detect(ctx, req.Message, &intent.Context{
		LastAIMessage: conv.LastAIMessage(),
		CurrentState:  string(conv.State()),
	}, req.UseLLMIntent)
	resp.DetectedIntent = detected.PrimaryIntent
	resp.IntentConfidence = detected.Confidence
	resp.Sentiment = detected.Sentiment
	resp.UsedLLMIntent = detected.UsedLLM
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("agent.intent", string(detected.PrimaryIntent)))

	carrierStop := s.keywords.IsStop(req.Message)

	// 4. immediate handoff
	if reason, kind, trigger, ok := immediateHandoff(detected.PrimaryIntent, max(conv.ObjectionCount(), lead.ObjectionCount)); ok && !carrierStop {
		resp.Result = ResultHandoffTriggered
		resp.ShouldHandoff = true
		resp.HandoffReason = reason
		resp.ResponseText = s.templates.HandoffMessage(ctx, recipient, kind)
		resp.LeadScore = prevScore
		s.metrics.ObserveHandoff(trigger)
		s.handOff(ctx, lead, convID, redacted, sess, resp)
		return nil
	}

	// 5. opt-out
	if carrierStop || detected.PrimaryIntent == intent.OptOut {
		resp.DetectedIntent = intent.OptOut
		s.optOut(ctx, lead, convID, redacted, sess, resp)
		return nil
	}

	// 6. channel preferences
	s.applyChannelPreferences(ctx, detected, lead.ID, conv, recipient, resp)

	// 7. qualification
	resp.ExtractedInfo = qual.UpdateFromIntent(string(detected.PrimaryIntent), detected.ExtractedEntities, req.Message)
	if conv.State() == StateInitial {
		conv.TransitionTo(StateQualifying, "lead_replied")
	}
	if isAppointmentIntent(detected) {
		resp.AppointmentRequested = true
		if conv.State() != StateHandedOff {
			conv.TransitionTo(StateScheduling, string(detected.PrimaryIntent))
		}
		if detected.Has(intent.TimeSelection) || detected.Has(intent.AppointmentConfirm) {
			s.templates.RecordABTestOutcome(ctx, convID, templates.OutcomeScheduled)
		}
	}

	// 8. objections
	text, handled := s.handleObjection(ctx, detected, lead, settings, conv, resp)

	// 9. reply
	scoreDelta := 0
	if !handled {
		text, scoreDelta = s.generate(ctx, req, redacted, detected, sess, settings, recipient, resp)
	}
	resp.ResponseText = joinText(resp.ChannelAcknowledgment, text)

	// 10. finalize
	s.score(resp, sess, settings, prevScore, scoreDelta)
	if resp.IsMinimallyQualified && !wasQualified {
		s.templates.RecordABTestOutcome(ctx, convID, templates.OutcomeQualified)
	}
	handoffReason := ""
	if resp.ShouldHandoff {
		if conv.TransitionTo(StateHandedOff, resp.HandoffReason) {
			handoffReason = resp.HandoffReason
			s.templates.RecordABTestOutcome(ctx, convID, templates.OutcomeHandedOff)
			s.recordAudit(ctx, store.AuditHandoff, lead.ID, convID, redacted, resp.ResponseText, map[string]any{"reason": resp.HandoffReason})
		}
	}
	resp.ConversationState = conv.State()
	s.syncCRM(ctx, lead, sess, handoffReason)
	return nil
}

// recordConsent stores the lead's intake consent flag when the checker
// keeps consent.
func (s *Service) recordConsent(ctx context.Context, lead LeadProfile) {
	if lead.SMSConsent == nil {
		return
	}
	rec, ok := s.compliance.(consentRecorder)
	if !ok {
		return
	}
	source := lead.Source
	if source == "" {
		source = "lead_intake"
	}
	if err := rec.RecordConsent(ctx, lead.Phone, *lead.SMSConsent, source); err != nil {
		s.collaboratorError("compliance", lead.ID, err)
	}
}

// blockedBySMSCompliance fills the compliance fields of resp and reports
// whether processing must stop. A STOP keyword always passes so the opt-out
// is recorded under any blocking status. START resubscribes an opted-out
// number.
func (s *Service) blockedBySMSCompliance(ctx context.Context, lead LeadProfile, message string, resp *Response) bool {
	if s.compliance == nil {
		return false
	}
	res, err := s.compliance.CheckSendAllowed(ctx, lead.Phone, lead.PersonID)
	if err != nil {
		s.collaboratorError("compliance", lead.ID, err)
		resp.ComplianceStatus = "unavailable"
		return false
	}
	resp.ComplianceStatus = string(res.Status)
	resp.ComplianceReason = res.Reason
	if res.Allowed() {
		return false
	}

	switch s.keywords.Classify(message) {
	case compliance.KeywordStop:
		// STOP is honored whatever else blocks the send.
		return false
	case compliance.KeywordStart:
		if res.Status == compliance.StatusOptedOut {
			if err := s.compliance.ClearOptOut(ctx, lead.Phone); err != nil {
				s.collaboratorError("compliance", lead.ID, err)
				break
			}
			s.logger.Info("lead resubscribed", "lead_id", lead.ID)
			resp.ComplianceStatus = string(compliance.StatusAllowed)
			resp.ComplianceReason = ""
			return false
		}
	}

	resp.Result = ResultComplianceBlocked
	resp.ResponseText = ""
	s.recordAudit(ctx, store.AuditComplianceBlocked, lead.ID, "", "", "", map[string]any{
		"status": string(res.Status),
		"reason": res.Reason,
	})
	return true
}

func immediateHandoff(primary intent.Intent, objections int) (reason string, kind templates.HandoffKind, trigger string, ok bool) {
	switch {
	case primary == intent.EscalationRequest:
		return reasonEscalation, templates.HandoffKindEscalation, "escalation_request", true
	case primary == intent.Frustration:
		return reasonFrustrated, templates.HandoffKindGeneric, "frustration", true
	case primary == intent.Profanity:
		return reasonProfanity, templates.HandoffKindGeneric, "profanity", true
	case objections >= objectionLimit:
		return reasonObjections, templates.HandoffKindGeneric, "objection_limit", true
	}
	return "", 0, "", false
}

func (s *Service) handOff(ctx context.Context, lead LeadProfile, convID, message string, sess *session, resp *Response) {
	sess.conversation.TransitionTo(StateHandedOff, resp.HandoffReason)
	resp.ConversationState = sess.conversation.State()
	s.templates.RecordABTestOutcome(ctx, convID, templates.OutcomeHandedOff)
	s.recordAudit(ctx, store.AuditHandoff, lead.ID, convID, message, resp.ResponseText, map[string]any{
		"reason": resp.HandoffReason,
		"intent": string(resp.DetectedIntent),
	})
	s.logger.Info("handoff triggered", "lead_id", lead.ID, "reason", resp.HandoffReason)
}

// optOut records the unsubscribe and answers with the fixed confirmation.
// It runs the same way however many times the lead sends STOP.
func (s *Service) optOut(ctx context.Context, lead LeadProfile, convID, message string, sess *session, resp *Response) {
	if s.compliance != nil {
		if err := s.compliance.RecordOptOut(ctx, lead.Phone, lead.PersonID); err != nil {
			s.collaboratorError("compliance", lead.ID, err)
		}
	}
	resp.Result = ResultSuccess
	resp.ResponseText = s.templates.OptOutConfirmation(ctx)
	resp.ConversationState = sess.conversation.State()
	resp.LeadScore = sess.qualification.Snapshot().QualificationScore
	s.templates.RecordABTestOutcome(ctx, convID, templates.OutcomeOptedOut)
	s.recordAudit(ctx, store.AuditOptOut, lead.ID, convID, message, resp.ResponseText, nil)
	s.logger.Info("lead opted out", "lead_id", lead.ID)
}

var preferredChannelByIntent = []struct {
	intent  intent.Intent
	channel Channel
}{
	{intent.ChannelPreferSMS, ChannelSMS},
	{intent.ChannelPreferEmail, ChannelEmail},
	{intent.ChannelPreferCall, ChannelCall},
}

func (s *Service) applyChannelPreferences(ctx context.Context, detected intent.DetectedIntent, leadID string, conv *ConversationManager, recipient templates.Recipient, resp *Response) {
	channel := ""
	if e, ok := detected.Entity(intent.EntityChannelPreference); ok {
		channel, _ = e.Value.(string)
	}
	if channel == "" {
		for _, p := range preferredChannelByIntent {
			if detected.Has(p.intent) {
				channel = string(p.channel)
				break
			}
		}
	}

	frequency := ""
	if e, ok := detected.Entity(intent.EntityChannelReduction); ok {
		frequency, _ = e.Value.(string)
	}
	if frequency == "" && detected.Has(intent.ChannelReduction) {
		frequency = "less"
	}

	if channel == "" && frequency == "" {
		return
	}

	if channel != "" {
		resp.ChannelPreferenceChanged = true
		resp.PreferredChannel = channel
		conv.SetPreferredChannel(channel)
		if s.preferences != nil {
			if err := s.preferences.SetPreferredChannel(ctx, leadID, channel); err != nil {
				s.collaboratorError("preferences", leadID, err)
			}
		}
	}
	if frequency != "" {
		resp.ChannelReductionRequested = true
		resp.ContactFrequency = frequency
		conv.SetContactFrequency(frequency)
		if s.preferences != nil {
			if err := s.preferences.SetContactFrequency(ctx, leadID, frequency); err != nil {
				s.collaboratorError("preferences", leadID, err)
			}
		}
	}
	resp.ChannelAcknowledgment = s.templates.ChannelAckMessage(ctx, recipient, channel, frequency)
}

func isAppointmentIntent(d intent.DetectedIntent) bool {
	switch d.PrimaryIntent {
	case intent.AppointmentInterest, intent.AppointmentConfirm, intent.AppointmentReschedule,
		intent.ShowingRequest, intent.TimeSelection:
		return true
	}
	return false
}

func (s *Service) handleObjection(ctx context.Context, detected intent.DetectedIntent, lead LeadProfile, settings config.AgentSettings, conv *ConversationManager, resp *Response) (string, bool) {
	if s.objections == nil {
		return "", false
	}
	t, ok := s.objections.ClassifyObjection(string(detected.PrimaryIntent))
	if !ok {
		return "", false
	}
	res, err := s.objections.Handle(ctx, t, objection.Context{
		FirstName: lead.FirstName,
		AgentName: settings.AgentName,
		State:     string(conv.State()),
	}, lead.ID)
	if err != nil {
		s.collaboratorError("objection", lead.ID, err)
		return "", false
	}

	conv.IncrementObjections()
	conv.TransitionTo(StateObjectionHandling, string(t))
	if res.MarkAsClosed {
		resp.ShouldHandoff = true
		resp.HandoffReason = reasonObjections
		s.metrics.ObserveHandoff("objection_limit")
	}
	return res.ResponseText, true
}

// generate asks the reply generator for a response and falls back to a
// state template when it is missing, fails, or returns something unusable.
// It returns the reply and the generator's score delta.
func (s *Service) generate(ctx context.Context, req MessageRequest, redacted string, detected intent.DetectedIntent, sess *session, settings config.AgentSettings, recipient templates.Recipient, resp *Response) (string, int) {
	conv, qual := sess.conversation, sess.qualification

	nextQuestion := ""
	if st := conv.State(); (st == StateInitial || st == StateQualifying) && qual.ShouldContinueQualifying() {
		if _, text, ok := qual.NextQuestion(&qualification.QuestionContext{FirstName: req.Lead.FirstName}, "", settings.MaxQualificationQuestions); ok {
			nextQuestion = text
		}
	}

	reason := "no_generator"
	if s.generator != nil {
		gen, err := s.generator.GenerateResponse(ctx, llm.GenerateRequest{
			Message:       redacted,
			History:       s.history(ctx, req),
			LeadContext:   req.Lead.context(),
			CurrentState:  string(conv.State()),
			Qualification: qual.Snapshot().ToMap(),
			LeadName:      req.Lead.FirstName,
			Channel:       string(resp.Channel),
			NextQuestion:  nextQuestion,
		})
		switch {
		case err != nil:
			s.collaboratorError("llm", req.Lead.ID, err)
			reason = "llm_error"
		case gen == nil || !gen.Quality.Usable() || strings.TrimSpace(gen.ResponseText) == "":
			reason = "low_quality"
		default:
			return s.applyGenerated(gen, sess, resp), gen.LeadScoreDelta
		}
	}

	resp.UsedFallback = true
	s.metrics.ObserveFallback(reason)
	s.logger.Debug("using template fallback", "lead_id", req.Lead.ID, "reason", reason, "state", conv.State())
	return s.fallbackText(ctx, conv.State(), detected, recipient, nextQuestion), 0
}

func (s *Service) applyGenerated(gen *llm.GeneratedResponse, sess *session, resp *Response) string {
	conv := sess.conversation
	resp.ModelUsed = gen.ModelUsed
	resp.TokensUsed = gen.TokensUsed

	if next, ok := ParseState(gen.NextState); ok && conv.State() != StateHandedOff && next != StateHandedOff {
		conv.TransitionTo(next, "reply_generator")
	}
	if len(gen.ExtractedInfo) > 0 {
		merged := sess.qualification.MergeExtractedInfo(gen.ExtractedInfo)
		if len(merged) > 0 && resp.ExtractedInfo == nil {
			resp.ExtractedInfo = map[string]any{}
		}
		for k, v := range merged {
			resp.ExtractedInfo[k] = v
		}
	}
	if gen.ShouldHandoff {
		resp.ShouldHandoff = true
		reason := strings.TrimSpace(gen.HandoffReason)
		if reason == "" {
			reason = reasonAgentAsked
		}
		resp.HandoffReason = joinReasons(resp.HandoffReason, reason)
		s.metrics.ObserveHandoff("reply_generator")
	}
	return gen.ResponseText
}

func (s *Service) fallbackText(ctx context.Context, state State, detected intent.DetectedIntent, recipient templates.Recipient, nextQuestion string) string {
	if detected.PrimaryIntent == intent.DeferredFollowup {
		phrase := ""
		if e, ok := detected.Entity(intent.EntityDeferredDate); ok {
			if d, ok := e.Value.(intent.DeferredDate); ok {
				phrase = d.Phrase
			}
		}
		return s.templates.FollowUpMessage(ctx, recipient, phrase)
	}
	if state == StateQualifying && nextQuestion != "" {
		return nextQuestion
	}
	if state == StateScheduling {
		return s.templates.SchedulingMessage(ctx, recipient)
	}
	return s.templates.FallbackMessage(ctx, categoryFor(state), recipient)
}

// score recomputes the lead score and applies the auto-schedule and
// auto-handoff thresholds.
func (s *Service) score(resp *Response, sess *session, settings config.AgentSettings, prevScore, delta int) {
	conv := sess.conversation
	data := sess.qualification.Snapshot()
	progress := sess.qualification.Progress()

	score := min(max(data.QualificationScore+delta, 0), 100)
	resp.LeadScore = score
	resp.ScoreDelta = score - prevScore
	resp.QualificationProgress = progress.OverallPercentage
	resp.IsMinimallyQualified = progress.IsMinimallyQualified

	if conv.State() == StateQualifying && progress.IsMinimallyQualified &&
		settings.AutoScheduleScoreThreshold > 0 && score >= settings.AutoScheduleScoreThreshold {
		conv.TransitionTo(StateScheduling, "auto_schedule")
	}
	if settings.AutoHandoffScoreThreshold > 0 && score >= settings.AutoHandoffScoreThreshold {
		resp.ShouldHandoff = true
		resp.HandoffReason = joinReasons(resp.HandoffReason, reasonHighScore)
		s.metrics.ObserveHandoff("high_score")
	}
	resp.ConversationState = conv.State()
}

// seedFromProfile copies CRM profile facts into a fresh qualification
// record.
func (s *Service) seedFromProfile(sess *session, lead LeadProfile) {
	snap := sess.conversation.Snapshot()
	if snap.InboundCount > 0 || snap.OutboundCount > 0 {
		return
	}
	info := map[string]any{}
	if lead.Timeline != "" {
		info["timeline"] = lead.Timeline
	}
	if len(lead.PreferredNeighborhoods) > 0 {
		info["location_preferences"] = lead.PreferredNeighborhoods
	}
	if len(info) > 0 {
		sess.qualification.MergeExtractedInfo(info)
	}
}

// commit records the outbound reply and writes the session through.
func (s *Service) commit(ctx context.Context, leadID string, sess *session, resp *Response) {
	if resp.Result != ResultError && resp.ResponseText != "" {
		sess.conversation.RecordOutbound(resp.ResponseText)
		s.appendTranscript(ctx, leadID, store.RoleAgent, resp.Channel, resp.ResponseText)
	}
	s.sessions.save(ctx, leadID, sess)
}

func (s *Service) history(ctx context.Context, req MessageRequest) []llm.ChatMessage {
	if len(req.History) > 0 || s.transcripts == nil {
		return req.History
	}
	lines, err := s.transcripts.Recent(ctx, req.Lead.ID, historyWindow+1)
	if err != nil {
		s.collaboratorError("transcripts", req.Lead.ID, err)
		return nil
	}
	// The newest line is the message being answered.
	if n := len(lines); n > 0 && lines[n-1].Role == store.RoleLead {
		lines = lines[:n-1]
	}
	out := make([]llm.ChatMessage, 0, len(lines))
	for _, l := range lines {
		role := llm.RoleUser
		if l.Role == store.RoleAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: l.Body})
	}
	return out
}

func (s *Service) appendTranscript(ctx context.Context, leadID, role string, channel Channel, body string) {
	if s.transcripts == nil || strings.TrimSpace(body) == "" {
		return
	}
	err := s.transcripts.Append(ctx, leadID, store.TranscriptMessage{
		Role:      role,
		Channel:   string(channel),
		Body:      body,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		s.collaboratorError("transcripts", leadID, err)
	}
}

// syncCRM pushes the qualification snapshot in the background. It never
// delays or fails the reply.
func (s *Service) syncCRM(ctx context.Context, lead LeadProfile, sess *session, handoffReason string) {
	if s.crm == nil {
		return
	}
	req := crm.SyncRequest{
		LeadID:        lead.ID,
		PersonID:      lead.PersonID,
		State:         string(sess.conversation.State()),
		Data:          sess.qualification.Snapshot(),
		HandoffReason: handoffReason,
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("crm sync panic", "lead_id", req.LeadID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
		defer cancel()
		if err := s.crm.SyncQualification(ctx, req); err != nil {
			s.collaboratorError("crm", req.LeadID, err)
		}
	}()
}

func (s *Service) recordAudit(ctx context.Context, eventType store.AuditEventType, leadID, convID, userMessage, aiResponse string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, eventType, leadID, convID, userMessage, aiResponse, details); err != nil {
		s.collaboratorError("audit", leadID, err)
	}
}

func (s *Service) collaboratorError(name, leadID string, err error) {
	s.logger.Warn("collaborator failed", "collaborator", name, "lead_id", leadID, "error", err)
	s.metrics.ObserveCollaboratorError(name)
}

// ConversationState returns a snapshot of the lead's conversation, or
// false when none is known.
func (s *Service) ConversationState(ctx context.Context, leadID string) (map[string]any, bool) {
	sess, ok := s.sessions.peek(ctx, leadID)
	if !ok {
		return nil, false
	}
	snap := sess.conversation.Snapshot()
	data := sess.qualification.Snapshot()
	progress := sess.qualification.Progress()

	transitions := make([]map[string]any, 0, len(snap.Transitions))
	for _, t := range snap.Transitions {
		transitions = append(transitions, map[string]any{
			"from":   string(t.From),
			"to":     string(t.To),
			"reason": t.Reason,
			"at":     t.At.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{
		"lead_id":                leadID,
		"state":                  string(snap.State),
		"objection_count":        snap.ObjectionCount,
		"inbound_count":          snap.InboundCount,
		"outbound_count":         snap.OutboundCount,
		"last_ai_message":        snap.LastAIMessage,
		"preferred_channel":      snap.PreferredChannel,
		"contact_frequency":      snap.ContactFrequency,
		"created_at":             snap.CreatedAt.UTC().Format(time.RFC3339),
		"transitions":            transitions,
		"qualification":          data.ToMap(),
		"qualification_progress": progress.OverallPercentage,
		"is_minimally_qualified": progress.IsMinimallyQualified,
	}, true
}

// ResetConversation forgets everything held about a lead.
func (s *Service) ResetConversation(ctx context.Context, leadID string) {
	s.sessions.remove(ctx, leadID)
	if s.objections != nil {
		s.objections.Reset(leadID)
	}
	if s.transcripts != nil {
		if err := s.transcripts.Clear(ctx, leadID); err != nil {
			s.collaboratorError("transcripts", leadID, err)
		}
	}
	s.logger.Info("conversation reset", "lead_id", leadID)
}

func joinReasons(existing, add string) string {
	switch {
	case existing == "":
		return add
	case strings.Contains(existing, add):
		return existing
	}
	return existing + "; " + add
}

func joinText(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

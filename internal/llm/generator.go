package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var generatorTracer = otel.Tracer("realty/response-generator")

const defaultGenerateTimeout = 20 * time.Second

// GenerateRequest carries everything the reply prompt needs. Fields are kept
// primitive so the generator does not depend on the orchestrator's types.
type GenerateRequest struct {
	Message       string
	History       []ChatMessage
	LeadContext   map[string]any
	CurrentState  string
	Qualification map[string]any
	LeadName      string
	Channel       string
	NextQuestion  string
}

// GeneratedResponse is the structured reply proposal.
type GeneratedResponse struct {
	ResponseText   string
	Quality        Quality
	QualityIssues  []string
	ModelUsed      string
	TokensUsed     int
	NextState      string
	ExtractedInfo  map[string]any
	ShouldHandoff  bool
	HandoffReason  string
	LeadScoreDelta int
}

// GeneratorConfig tunes the persona and call budget.
type GeneratorConfig struct {
	Model         string
	AgentName     string
	BrokerageName string
	MaxTokens     int32
	Temperature   float32
	Timeout       time.Duration
}

// ResponseGenerator produces agent replies with an LLM.
type ResponseGenerator struct {
	client Client
	cfg    GeneratorConfig
	logger *logging.Logger
}

func NewResponseGenerator(client Client, cfg GeneratorConfig, logger *logging.Logger) *ResponseGenerator {
	if client == nil {
		panic("llm: response generator requires a client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerateTimeout
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "Sarah"
	}
	if cfg.BrokerageName == "" {
		cfg.BrokerageName = "our team"
	}
	return &ResponseGenerator{client: client, cfg: cfg, logger: logger.WithComponent("response_generator")}
}

type replyEnvelope struct {
	Response       string         `json:"response"`
	NextState      string         `json:"next_state"`
	ExtractedInfo  map[string]any `json:"extracted_info"`
	ShouldHandoff  bool           `json:"should_handoff"`
	HandoffReason  string         `json:"handoff_reason"`
	LeadScoreDelta int            `json:"lead_score_delta"`
}

// GenerateResponse asks the model for a reply and grades it.
func (g *ResponseGenerator) GenerateResponse(ctx context.Context, req GenerateRequest) (*GeneratedResponse, error) {
	ctx, span := generatorTracer.Start(ctx, "response.generate")
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("llm: message is required")
	}

	messages := make([]ChatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: req.Message})

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	completion, err := Generate(callCtx, g.client, g.cfg.Model, g.systemPrompt(req), messages, g.cfg.MaxTokens, g.cfg.Temperature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("llm: generate response: %w", err)
	}

	out := parseReply(completion.Text)
	out.ModelUsed = completion.ModelUsed
	out.TokensUsed = completion.TokensUsed
	out.Quality, out.QualityIssues = AssessQuality(out.ResponseText, req.CurrentState, req.Channel)

	span.SetAttributes(
		attribute.String("response.quality", string(out.Quality)),
		attribute.String("response.model", out.ModelUsed),
		attribute.Int("response.tokens", out.TokensUsed),
	)
	if !out.Quality.Usable() {
		g.logger.Warn("generated response below quality bar",
			"quality", out.Quality,
			"issues", out.QualityIssues,
		)
	}
	return out, nil
}

// parseReply accepts either the JSON envelope or a bare text reply.
func parseReply(text string) *GeneratedResponse {
	out := &GeneratedResponse{ResponseText: strings.TrimSpace(text)}
	block, ok := ExtractJSONObject(text)
	if !ok {
		return out
	}
	var env replyEnvelope
	if err := json.Unmarshal([]byte(block), &env); err != nil {
		return out
	}
	out.ResponseText = strings.TrimSpace(env.Response)
	out.NextState = strings.ToUpper(strings.TrimSpace(env.NextState))
	out.ExtractedInfo = env.ExtractedInfo
	out.ShouldHandoff = env.ShouldHandoff
	out.HandoffReason = env.HandoffReason
	out.LeadScoreDelta = env.LeadScoreDelta
	return out
}

func (g *ResponseGenerator) systemPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are %s, a friendly real-estate assistant texting on behalf of %s.
Write like a real person texting: short, warm, one question at a time, no emojis overload, never mention being an AI.
Keep SMS replies under 300 characters.

Conversation state: %s
`, g.cfg.AgentName, g.cfg.BrokerageName, req.CurrentState)

	if req.LeadName != "" {
		fmt.Fprintf(&b, "Lead first name: %s\n", req.LeadName)
	}
	if len(req.LeadContext) > 0 {
		b.WriteString("\nLead profile:\n")
		writeSortedMap(&b, req.LeadContext)
	}
	if len(req.Qualification) > 0 {
		b.WriteString("\nWhat we already know (do not ask again):\n")
		writeSortedMap(&b, req.Qualification)
	}
	if req.NextQuestion != "" {
		fmt.Fprintf(&b, "\nIf it fits naturally, work in this question: %q\n", req.NextQuestion)
	}

	b.WriteString(`
Respond ONLY with a JSON object:
{"response": "<text to send>",
 "next_state": "<INITIAL|QUALIFYING|OBJECTION_HANDLING|SCHEDULING|NURTURE|HANDED_OFF or empty>",
 "extracted_info": {"timeline": "...", "budget": 0, "location": "...", "motivation": "...", "pre_approved": false},
 "should_handoff": false,
 "handoff_reason": "",
 "lead_score_delta": 0}
Set should_handoff when the lead asks for a person, wants to make an offer, or needs licensed advice.`)
	return b.String()
}

func writeSortedMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		fmt.Fprintf(b, "- %s: %v\n", k, v)
	}
}

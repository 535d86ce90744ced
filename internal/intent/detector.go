package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/internal/observability/metrics"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var detectorTracer = otel.Tracer("realty/intent-detector")

const (
	unknownConfidence  = 0.3
	questionConfidence = 0.6

	// LLM verification thresholds.
	skipVerifyAt    = 0.85
	verifyBelow     = 0.75
	ambiguityMargin = 0.15

	maxSecondary             = 4
	defaultLLMTimeout        = 8 * time.Second
	verifyMaxTokens          = 300
	floatTolerance           = 1e-9
	defaultVerdictConfidence = 0.8
)

// Context is the conversational context handed to LLM verification.
type Context struct {
	LastAIMessage string
	CurrentState  string
}

// Detector combines the pattern table, entity extraction and an optional LLM
// verification pass into one DetectedIntent.
type Detector struct {
	matcher   *PatternMatcher
	extractor *EntityExtractor
	llm       llm.Client
	model     string
	timeout   time.Duration
	metrics   *metrics.AgentMetrics
	logger    *logging.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLLM enables LLM verification of low-confidence or ambiguous results.
func WithLLM(client llm.Client, model string) Option {
	return func(d *Detector) {
		d.llm = client
		d.model = model
	}
}

func WithLLMTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithMetrics(m *metrics.AgentMetrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithPatternMatcher(m *PatternMatcher) Option {
	return func(d *Detector) {
		if m != nil {
			d.matcher = m
		}
	}
}

func WithEntityExtractor(e *EntityExtractor) Option {
	return func(d *Detector) {
		if e != nil {
			d.extractor = e
		}
	}
}

func NewDetector(logger *logging.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Detector{
		matcher:   DefaultPatternMatcher(),
		extractor: NewEntityExtractor(),
		timeout:   defaultLLMTimeout,
		logger:    logger.WithComponent("intent_detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies message. It never fails: LLM problems leave the
// pattern-derived result in place.
func (d *Detector) Detect(ctx context.Context, message string, dctx *Context, useLLMFallback bool) DetectedIntent {
	ctx, span := detectorTracer.Start(ctx, "intent.detect")
	defer span.End()

	result, verify := d.classify(message)
	if verify && useLLMFallback && d.llm != nil {
		result = d.verifyWithLLM(ctx, result, dctx)
	}
	d.observe(span, result)
	return result
}

// DetectAsync runs the cheap rule passes inline and only moves the LLM call
// onto a goroutine. The channel receives exactly one result.
func (d *Detector) DetectAsync(ctx context.Context, message string, dctx *Context, useLLMFallback bool) <-chan DetectedIntent {
	out := make(chan DetectedIntent, 1)
	result, verify := d.classify(message)
	if !verify || !useLLMFallback || d.llm == nil {
		d.metrics.ObserveIntent(string(result.PrimaryIntent), false)
		out <- result
		close(out)
		return out
	}
	go func() {
		defer close(out)
		ctx, span := detectorTracer.Start(ctx, "intent.detect_async")
		defer span.End()
		verified := d.verifyWithLLM(ctx, result, dctx)
		d.observe(span, verified)
		out <- verified
	}()
	return out
}

func (d *Detector) observe(span trace.Span, result DetectedIntent) {
	span.SetAttributes(
		attribute.String("intent.primary", string(result.PrimaryIntent)),
		attribute.Float64("intent.confidence", result.Confidence),
		attribute.Bool("intent.used_llm", result.UsedLLM),
		attribute.Int("intent.secondary_count", len(result.SecondaryIntents)),
		attribute.Int("intent.entity_count", len(result.ExtractedEntities)),
	)
	d.metrics.ObserveIntent(string(result.PrimaryIntent), result.UsedLLM)
}

// classify runs normalization, patterns, entities, consolidation and the
// sentiment/urgency heuristics. The bool reports whether LLM verification is
// warranted.
func (d *Detector) classify(message string) (DetectedIntent, bool) {
	if strings.TrimSpace(message) == "" {
		return DetectedIntent{
			PrimaryIntent: Unknown,
			Confidence:    0,
			Sentiment:     SentimentNeutral,
			Urgency:       UrgencyNormal,
			RawMessage:    message,
		}, false
	}

	normalized := Normalize(message)
	matches := d.matcher.Match(normalized)
	entities := d.extractor.ExtractAll(normalized)

	primary, secondary := consolidate(matches, normalized)
	result := DetectedIntent{
		PrimaryIntent:     primary.Intent,
		Confidence:        clamp01(primary.Confidence),
		SecondaryIntents:  secondary,
		ExtractedEntities: entities,
		Sentiment:         sentimentFor(primary.Intent),
		Urgency:           urgencyFor(primary.Intent),
		RawMessage:        message,
	}
	return result, needsVerification(result)
}

func consolidate(matches []PatternMatch, text string) (Scored, []Scored) {
	if len(matches) == 0 {
		if strings.Contains(text, "?") {
			return Scored{Intent: Question, Confidence: questionConfidence}, nil
		}
		return Scored{Intent: Unknown, Confidence: unknownConfidence}, nil
	}

	best := make(map[Intent]float64, len(matches))
	order := make([]Intent, 0, len(matches))
	for _, m := range matches {
		c, seen := best[m.Intent]
		if !seen {
			order = append(order, m.Intent)
		}
		if !seen || m.Confidence > c {
			best[m.Intent] = m.Confidence
		}
	}
	scored := make([]Scored, 0, len(order))
	for _, i := range order {
		scored = append(scored, Scored{Intent: i, Confidence: best[i]})
	}
	rank(scored)
	preferChannelSwitch(scored)

	secondary := scored[1:]
	if len(secondary) > maxSecondary {
		secondary = secondary[:maxSecondary]
	}
	return scored[0], append([]Scored(nil), secondary...)
}

// rank sorts by (high priority, confidence) descending. The sort is stable so
// equal keys keep table order.
func rank(scored []Scored) {
	sort.SliceStable(scored, func(a, b int) bool {
		ha, hb := scored[a].Intent.IsHighPriority(), scored[b].Intent.IsHighPriority()
		if ha != hb {
			return ha
		}
		return scored[a].Confidence > scored[b].Confidence
	})
}

// preferChannelSwitch moves a channel preference ahead of an opt-out match.
// "don't text me, email me instead" asks for a different channel, not an
// unsubscribe; the opt-out stays as a secondary intent.
func preferChannelSwitch(scored []Scored) {
	if len(scored) < 2 || scored[0].Intent != OptOut {
		return
	}
	for i := 1; i < len(scored); i++ {
		switch scored[i].Intent {
		case ChannelPreferEmail, ChannelPreferCall, ChannelPreferSMS:
			pref := scored[i]
			copy(scored[1:i+1], scored[:i])
			scored[0] = pref
			return
		}
	}
}

func needsVerification(d DetectedIntent) bool {
	if d.Confidence >= skipVerifyAt {
		return false
	}
	if d.PrimaryIntent == Unknown {
		return true
	}
	if d.Confidence < verifyBelow {
		return true
	}
	if len(d.SecondaryIntents) > 0 && d.Confidence-d.SecondaryIntents[0].Confidence <= ambiguityMargin+floatTolerance {
		return true
	}
	return false
}

type llmVerdict struct {
	PrimaryIntent    string            `json:"primary_intent"`
	Confidence       float64           `json:"confidence"`
	SecondaryIntents []json.RawMessage `json:"secondary_intents"`
	Sentiment        string            `json:"sentiment"`
	Reasoning        string            `json:"reasoning"`
}

func (d *Detector) verifyWithLLM(ctx context.Context, base DetectedIntent, dctx *Context) (out DetectedIntent) {
	out = base
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("intent llm verification panicked", "panic", fmt.Sprint(r))
			d.metrics.ObserveLLMVerification("error")
			out = base
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	completion, err := llm.Generate(callCtx, d.llm, d.model, classificationSystemPrompt(),
		[]llm.ChatMessage{{Role: llm.RoleUser, Content: classificationUserPrompt(base.RawMessage, dctx)}},
		verifyMaxTokens, 0)
	if err != nil {
		d.logger.Warn("intent llm verification failed", "error", err, "pattern_intent", base.PrimaryIntent)
		d.metrics.ObserveLLMVerification("error")
		return base
	}

	block, ok := llm.ExtractJSONObject(completion.Text)
	if !ok {
		d.metrics.ObserveLLMVerification("unparsed")
		return base
	}
	var verdict llmVerdict
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		d.logger.Debug("intent llm verdict not decodable", "error", err)
		d.metrics.ObserveLLMVerification("unparsed")
		return base
	}
	primary, ok := Parse(verdict.PrimaryIntent)
	if !ok {
		d.logger.Debug("intent llm returned unknown intent", "intent", verdict.PrimaryIntent)
		d.metrics.ObserveLLMVerification("unknown_intent")
		return base
	}

	confidence := clamp01(verdict.Confidence)
	if confidence == 0 {
		confidence = defaultVerdictConfidence
	}

	out = mergeVerdict(base, primary, confidence, parseSecondary(verdict.SecondaryIntents))
	if s, ok := parseSentiment(verdict.Sentiment); ok {
		out.Sentiment = s
	}
	out.Reasoning = verdict.Reasoning

	if primary == base.PrimaryIntent {
		d.metrics.ObserveLLMVerification("confirmed")
	} else {
		d.metrics.ObserveLLMVerification("overridden")
	}
	return out
}

func mergeVerdict(base DetectedIntent, primary Intent, confidence float64, extra []Scored) DetectedIntent {
	pool := make(map[Intent]float64)
	var order []Intent
	add := func(s Scored) {
		if s.Intent == primary {
			return
		}
		c, seen := pool[s.Intent]
		if !seen {
			order = append(order, s.Intent)
		}
		if !seen || s.Confidence > c {
			pool[s.Intent] = s.Confidence
		}
	}
	if base.PrimaryIntent != Unknown {
		add(Scored{Intent: base.PrimaryIntent, Confidence: base.Confidence})
	}
	for _, s := range base.SecondaryIntents {
		add(s)
	}
	for _, s := range extra {
		add(s)
	}
	secondary := make([]Scored, 0, len(order))
	for _, i := range order {
		secondary = append(secondary, Scored{Intent: i, Confidence: pool[i]})
	}
	rank(secondary)
	if len(secondary) > maxSecondary {
		secondary = secondary[:maxSecondary]
	}

	out := base
	out.PrimaryIntent = primary
	out.Confidence = confidence
	out.SecondaryIntents = secondary
	out.Sentiment = sentimentFor(primary)
	out.Urgency = urgencyFor(primary)
	out.UsedLLM = true
	return out
}

// parseSecondary accepts either bare intent names or {intent, confidence}
// objects and drops anything it cannot map.
func parseSecondary(raw []json.RawMessage) []Scored {
	var out []Scored
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			if i, ok := Parse(name); ok {
				out = append(out, Scored{Intent: i, Confidence: 0.5})
			}
			continue
		}
		var obj struct {
			Intent     string  `json:"intent"`
			Confidence float64 `json:"confidence"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			continue
		}
		if i, ok := Parse(obj.Intent); ok {
			out = append(out, Scored{Intent: i, Confidence: clamp01(obj.Confidence)})
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

var abbreviations = map[string]string{
	"u":      "you",
	"ur":     "your",
	"pls":    "please",
	"plz":    "please",
	"thx":    "thanks",
	"thnx":   "thanks",
	"ty":     "thank you",
	"r":      "are",
	"b4":     "before",
	"idk":    "i don't know",
	"rn":     "right now",
	"tmrw":   "tomorrow",
	"tmr":    "tomorrow",
	"yr":     "year",
	"yrs":    "years",
	"mos":    "months",
	"wk":     "week",
	"wks":    "weeks",
	"bc":     "because",
	"cuz":    "because",
	"lmk":    "let me know",
	"nvm":    "never mind",
	"txt":    "text",
	"msg":    "message",
	"wanna":  "want to",
	"gonna":  "going to",
	"prolly": "probably",
	"abt":    "about",
	"thru":   "through",
	"ppl":    "people",
}

var abbreviationRE = func() *regexp.Regexp {
	keys := make([]string, 0, len(abbreviations))
	for k := range abbreviations {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(a, b int) bool {
		if len(keys[a]) != len(keys[b]) {
			return len(keys[a]) > len(keys[b])
		}
		return keys[a] < keys[b]
	})
	return regexp.MustCompile(`(?i)\b(` + strings.Join(keys, "|") + `)\b`)
}()

// Normalize collapses whitespace and expands common texting abbreviations.
func Normalize(message string) string {
	collapsed := strings.TrimSpace(whitespaceRE.ReplaceAllString(message, " "))
	return abbreviationRE.ReplaceAllStringFunc(collapsed, func(m string) string {
		if full, ok := abbreviations[strings.ToLower(m)]; ok {
			return full
		}
		return m
	})
}

// Package objection classifies lead objections and answers them with
// scripted responses, closing the lead out after repeated pushback.
package objection

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/objection-handler")

var ErrUnknownObjection = errors.New("objection: unknown objection type")

// Type is a recognized objection.
type Type string

const (
	OtherAgent    Type = "other_agent"
	NotReady      Type = "not_ready"
	JustBrowsing  Type = "just_browsing"
	Price         Type = "price"
	Timing        Type = "timing"
	NotInterested Type = "not_interested"
)

var byIntent = map[intent.Intent]Type{
	intent.ObjectionOtherAgent: OtherAgent,
	intent.ObjectionNotReady:   NotReady,
	intent.JustBrowsing:        JustBrowsing,
	intent.ObjectionPrice:      Price,
	intent.ObjectionTiming:     Timing,
	intent.NegativeInterest:    NotInterested,
}

// Classify maps an intent name to an objection type.
func Classify(intentName string) (Type, bool) {
	i, ok := intent.Parse(intentName)
	if !ok {
		return "", false
	}
	t, ok := byIntent[i]
	return t, ok
}

// Context personalizes the scripted reply.
type Context struct {
	FirstName string
	AgentName string
	State     string
}

// Result is the handler's reply.
type Result struct {
	Type         Type   `json:"type"`
	ResponseText string `json:"response_text"`
	Strategy     string `json:"strategy"`
	Count        int    `json:"count"`
	MarkAsClosed bool   `json:"mark_as_closed"`
}

type script struct {
	strategy  string
	responses []string
	closing   string
}

var scripts = map[Type]script{
	OtherAgent: {
		strategy: "respect_relationship",
		responses: []string{
			"That's great you have someone, {first_name}! If you ever want a second set of eyes on a listing, I'm happy to help.",
			"Totally respect that. Good agents are worth holding onto. Feel free to reach out if anything changes.",
		},
		closing: "Sounds like you're in good hands, {first_name}. I'll step back, but I'm here if you ever need anything.",
	},
	NotReady: {
		strategy: "reduce_pressure",
		responses: []string{
			"No rush at all, {first_name}. Would it help if I sent a few listings now and then so you can get a feel for the market?",
			"Completely understand. Lots of people start by just watching prices. Want me to check back in a few months?",
		},
		closing: "I'll give you some space, {first_name}. Whenever the timing feels right, just text me.",
	},
	JustBrowsing: {
		strategy: "offer_value",
		responses: []string{
			"Browsing is the best way to start! Any neighborhoods you've been keeping an eye on?",
			"Love that. If you tell me what catches your eye, I can send similar homes before they hit the big sites.",
		},
		closing: "Enjoy the browsing, {first_name}! I'm here whenever you want to dig into something.",
	},
	Price: {
		strategy: "reframe_value",
		responses: []string{
			"Prices can feel steep, {first_name}. There are often good options just outside the hot spots. Want me to look at a few nearby areas?",
			"I hear you. Sometimes the right loan program changes the math a lot. Would it help to talk with a lender I trust?",
		},
		closing: "Understood, {first_name}. If prices shift or you want to revisit, I'll be here.",
	},
	Timing: {
		strategy: "schedule_later",
		responses: []string{
			"No problem! When would be a better time to reconnect?",
			"Totally get it, {first_name}. Want me to check back after things calm down?",
		},
		closing: "I'll hold off for now, {first_name}. Reach out whenever it works for you.",
	},
	NotInterested: {
		strategy: "graceful_exit",
		responses: []string{
			"Thanks for letting me know, {first_name}. If anything changes down the road, I'm just a text away.",
			"Understood, and thanks for being upfront. I'll be here if you ever need anything real estate related.",
		},
		closing: "Thanks, {first_name}. I won't keep bugging you. Best of luck!",
	},
}

const (
	DefaultMaxObjections = 3
	defaultCountCacheLen = 10000
	defaultCountTTL      = 30 * 24 * time.Hour
)

// Handler answers objections and counts them per lead.
type Handler struct {
	counts        *expirable.LRU[string, int]
	maxObjections int
	pick          func(n int) int
	logger        *logging.Logger
}

type Option func(*Handler)

func WithMaxObjections(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxObjections = n
		}
	}
}

func WithPicker(pick func(n int) int) Option {
	return func(h *Handler) {
		if pick != nil {
			h.pick = pick
		}
	}
}

// WithCountCache bounds the per-lead counters.
func WithCountCache(size int, ttl time.Duration) Option {
	return func(h *Handler) {
		if size > 0 {
			h.counts = expirable.NewLRU[string, int](size, nil, ttl)
		}
	}
}

func NewHandler(logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		counts:        expirable.NewLRU[string, int](defaultCountCacheLen, nil, defaultCountTTL),
		maxObjections: DefaultMaxObjections,
		pick:          rand.IntN,
		logger:        logger.WithComponent("objection-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ClassifyObjection is Classify bound to the handler.
func (h *Handler) ClassifyObjection(intentName string) (Type, bool) {
	return Classify(intentName)
}

// Handle records the objection and returns a scripted reply. Once a lead
// reaches the objection limit the reply switches to a closing line and
// MarkAsClosed is set.
func (h *Handler) Handle(ctx context.Context, t Type, octx Context, leadID string) (Result, error) {
	_, span := tracer.Start(ctx, "objection.handle")
	defer span.End()

	s, ok := scripts[t]
	if !ok {
		return Result{}, ErrUnknownObjection
	}

	count, _ := h.counts.Get(leadID)
	count++
	h.counts.Add(leadID, count)

	res := Result{Type: t, Strategy: s.strategy, Count: count}
	if count >= h.maxObjections {
		res.MarkAsClosed = true
		res.ResponseText = render(s.closing, octx)
	} else {
		res.ResponseText = render(s.responses[h.pick(len(s.responses))], octx)
	}

	span.SetAttributes(
		attribute.String("objection.type", string(t)),
		attribute.Int("objection.count", count),
		attribute.Bool("objection.closed", res.MarkAsClosed),
	)
	h.logger.Info("objection handled", "lead_id", leadID, "type", t, "count", count, "closed", res.MarkAsClosed)
	return res, nil
}

// Count returns how many objections a lead has raised.
func (h *Handler) Count(leadID string) int {
	n, _ := h.counts.Get(leadID)
	return n
}

func (h *Handler) Reset(leadID string) {
	h.counts.Remove(leadID)
}

func render(text string, octx Context) string {
	name := strings.TrimSpace(octx.FirstName)
	if name == "" {
		name = "there"
	}
	agent := strings.TrimSpace(octx.AgentName)
	if agent == "" {
		agent = "your agent"
	}
	return strings.NewReplacer("{first_name}", name, "{agent_name}", agent).Replace(text)
}

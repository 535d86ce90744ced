package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/compliance")

var ErrInvalidPhone = errors.New("compliance: invalid phone number")

// Status is the outcome of a send-permission check.
type Status string

const (
	StatusAllowed      Status = "allowed"
	StatusOptedOut     Status = "opted_out"
	StatusQuietHours   Status = "quiet_hours"
	StatusRateLimited  Status = "rate_limited"
	StatusInvalidPhone Status = "invalid_phone"
	StatusNoConsent    Status = "no_consent"
)

// Result explains a send-permission decision.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	// RetryAt is set for quiet-hours blocks.
	RetryAt time.Time `json:"retry_at,omitempty"`
}

func (r Result) Allowed() bool { return r.Status == StatusAllowed }

// OptOutStore is the source of truth for unsubscribed numbers.
type OptOutStore interface {
	IsOptedOut(ctx context.Context, phone string) (bool, error)
	RecordOptOut(ctx context.Context, phone, personID string) error
	ClearOptOut(ctx context.Context, phone string) error
}

// ConsentStore reports whether a number has consented to automated texts.
type ConsentStore interface {
	HasConsent(ctx context.Context, phone string) (bool, error)
}

// ConsentRecorder is a ConsentStore that can also persist a decision.
type ConsentRecorder interface {
	ConsentStore
	RecordConsent(ctx context.Context, phone string, granted bool, source string) error
}

// RateLimiter caps automated sends per number per day.
type RateLimiter interface {
	Exceeded(ctx context.Context, phone string) (bool, error)
	Increment(ctx context.Context, phone string) error
}

// Checker decides whether an SMS may be sent to a lead.
type Checker struct {
	optOuts OptOutStore
	consent ConsentStore
	limiter RateLimiter
	quiet   QuietHours
	purpose Purpose
	now     func() time.Time
	logger  *logging.Logger
}

type CheckerOption func(*Checker)

func WithConsentStore(s ConsentStore) CheckerOption {
	return func(c *Checker) { c.consent = s }
}

func WithRateLimiter(l RateLimiter) CheckerOption {
	return func(c *Checker) { c.limiter = l }
}

func WithQuietHours(q QuietHours) CheckerOption {
	return func(c *Checker) { c.quiet = q }
}

// WithPurpose sets the purpose used by CheckSendAllowed. Defaults to
// PurposeReply.
func WithPurpose(p Purpose) CheckerOption {
	return func(c *Checker) { c.purpose = p }
}

func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChecker(optOuts OptOutStore, logger *logging.Logger, opts ...CheckerOption) *Checker {
	if optOuts == nil {
		panic("compliance: opt-out store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Checker{
		optOuts: optOuts,
		purpose: PurposeReply,
		now:     time.Now,
		logger:  logger.WithComponent("compliance"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckSendAllowed runs the checks in order: phone format, opt-out,
// consent, quiet hours, daily rate. It has no side effects.
func (c *Checker) CheckSendAllowed(ctx context.Context, phone, personID string) (Result, error) {
	return c.Check(ctx, phone, personID, c.purpose)
}

// Check is CheckSendAllowed with an explicit purpose.
func (c *Checker) Check(ctx context.Context, phone, personID string, purpose Purpose) (Result, error) {
	ctx, span := tracer.Start(ctx, "compliance.check")
	defer span.End()
	span.SetAttributes(attribute.String("compliance.purpose", string(purpose)))

	res, err := c.check(ctx, phone, purpose)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("compliance.status", string(res.Status)))
	if !res.Allowed() {
		c.logger.Info("send blocked", "status", res.Status, "person_id", personID)
	}
	return res, nil
}

func (c *Checker) check(ctx context.Context, phone string, purpose Purpose) (Result, error) {
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return Result{Status: StatusInvalidPhone, Reason: "phone number is not dialable"}, nil
	}

	optedOut, err := c.optOuts.IsOptedOut(ctx, normalized)
	if err != nil {
		return Result{}, fmt.Errorf("compliance: opt-out lookup: %w", err)
	}
	if optedOut {
		return Result{Status: StatusOptedOut, Reason: "lead unsubscribed"}, nil
	}

	if c.consent != nil {
		consented, err := c.consent.HasConsent(ctx, normalized)
		if err != nil {
			return Result{}, fmt.Errorf("compliance: consent lookup: %w", err)
		}
		if !consented {
			return Result{Status: StatusNoConsent, Reason: "no recorded consent for automated texts"}, nil
		}
	}

	now := c.now()
	if c.quiet.Suppress(now, purpose) {
		return Result{
			Status:  StatusQuietHours,
			Reason:  "inside quiet hours",
			RetryAt: c.quiet.NextAllowed(now),
		}, nil
	}

	if c.limiter != nil {
		exceeded, err := c.limiter.Exceeded(ctx, normalized)
		if err != nil {
			return Result{}, fmt.Errorf("compliance: rate lookup: %w", err)
		}
		if exceeded {
			return Result{Status: StatusRateLimited, Reason: "daily message limit reached"}, nil
		}
	}
	return Result{Status: StatusAllowed}, nil
}

// RecordOptOut unsubscribes phone. Repeated calls are harmless.
func (c *Checker) RecordOptOut(ctx context.Context, phone, personID string) error {
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return ErrInvalidPhone
	}
	if err := c.optOuts.RecordOptOut(ctx, normalized, personID); err != nil {
		return fmt.Errorf("compliance: record opt-out: %w", err)
	}
	c.logger.Info("opt-out recorded", "person_id", personID)
	return nil
}

// ClearOptOut resubscribes phone after a START keyword.
func (c *Checker) ClearOptOut(ctx context.Context, phone string) error {
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return ErrInvalidPhone
	}
	if err := c.optOuts.ClearOptOut(ctx, normalized); err != nil {
		return fmt.Errorf("compliance: clear opt-out: %w", err)
	}
	return nil
}

// RecordConsent stores the consent captured at lead intake. It is a no-op
// unless consent gating is on and the consent store can persist.
func (c *Checker) RecordConsent(ctx context.Context, phone string, granted bool, source string) error {
	rec, ok := c.consent.(ConsentRecorder)
	if !ok {
		return nil
	}
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return ErrInvalidPhone
	}
	if err := rec.RecordConsent(ctx, normalized, granted, source); err != nil {
		return fmt.Errorf("compliance: record consent: %w", err)
	}
	return nil
}

// RecordSend counts a delivered message toward the daily cap.
func (c *Checker) RecordSend(ctx context.Context, phone string) error {
	if c.limiter == nil {
		return nil
	}
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return ErrInvalidPhone
	}
	return c.limiter.Increment(ctx, normalized)
}

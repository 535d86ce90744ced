package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/internal/messaging/telnyxclient"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/messaging-gateway")

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var (
	ErrUnsupportedChannel = errors.New("messaging: unsupported channel")
	ErrMissingRecipient   = errors.New("messaging: recipient required")
	ErrEmptyBody          = errors.New("messaging: body required")
)

// OutboundMessage is an agent reply ready for delivery.
type OutboundMessage struct {
	LeadID  string
	Channel string
	// To is a phone number for SMS and an address for email.
	To      string
	ToName  string
	Subject string
	Body    string
}

// Receipt identifies a delivered message.
type Receipt struct {
	ProviderID string
	Channel    string
	Status     string
}

// SMSSender is satisfied by telnyxclient.Client.
type SMSSender interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}

// SendRecorder counts delivered SMS toward the daily cap.
type SendRecorder interface {
	RecordSend(ctx context.Context, phone string) error
}

// Gateway routes agent replies to the right provider.
type Gateway struct {
	sms            SMSSender
	email          EmailSender
	recorder       SendRecorder
	fromNumber     string
	defaultSubject string
	logger         *logging.Logger
}

type GatewayOption func(*Gateway)

func WithSMS(sender SMSSender, fromNumber string) GatewayOption {
	return func(g *Gateway) {
		g.sms = sender
		g.fromNumber = fromNumber
	}
}

func WithEmail(sender EmailSender) GatewayOption {
	return func(g *Gateway) { g.email = sender }
}

func WithSendRecorder(r SendRecorder) GatewayOption {
	return func(g *Gateway) { g.recorder = r }
}

func WithDefaultSubject(subject string) GatewayOption {
	return func(g *Gateway) {
		if subject != "" {
			g.defaultSubject = subject
		}
	}
}

func NewGateway(logger *logging.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	g := &Gateway{
		defaultSubject: "Following up on your home search",
		logger:         logger.WithComponent("messaging-gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send delivers msg on its channel. Senders that are not configured yield
// ErrUnsupportedChannel.
func (g *Gateway) Send(ctx context.Context, msg OutboundMessage) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "messaging.send")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.channel", msg.Channel), attribute.String("messaging.lead_id", msg.LeadID))

	if strings.TrimSpace(msg.Body) == "" {
		return Receipt{}, ErrEmptyBody
	}
	if strings.TrimSpace(msg.To) == "" {
		return Receipt{}, ErrMissingRecipient
	}

	var (
		receipt Receipt
		err     error
	)
	switch strings.ToLower(msg.Channel) {
	case ChannelSMS:
		receipt, err = g.sendSMS(ctx, msg)
	case ChannelEmail:
		receipt, err = g.sendEmail(ctx, msg)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedChannel, msg.Channel)
	}
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("outbound send failed", "lead_id", msg.LeadID, "channel", msg.Channel, "error", err)
		return Receipt{}, err
	}
	g.logger.Info("outbound sent", "lead_id", msg.LeadID, "channel", receipt.Channel, "provider_id", receipt.ProviderID)
	return receipt, nil
}

func (g *Gateway) sendSMS(ctx context.Context, msg OutboundMessage) (Receipt, error) {
	if g.sms == nil {
		return Receipt{}, fmt.Errorf("%w: sms sender not configured", ErrUnsupportedChannel)
	}
	resp, err := g.sms.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From: g.fromNumber,
		To:   msg.To,
		Body: msg.Body,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("messaging: send sms: %w", err)
	}
	if g.recorder != nil {
		if err := g.recorder.RecordSend(ctx, msg.To); err != nil {
			g.logger.Warn("failed to count sms toward daily limit", "lead_id", msg.LeadID, "error", err)
		}
	}
	return Receipt{ProviderID: resp.ID, Channel: ChannelSMS, Status: resp.Status}, nil
}

func (g *Gateway) sendEmail(ctx context.Context, msg OutboundMessage) (Receipt, error) {
	if g.email == nil {
		return Receipt{}, fmt.Errorf("%w: email sender not configured", ErrUnsupportedChannel)
	}
	subject := msg.Subject
	if subject == "" {
		subject = g.defaultSubject
	}
	if err := g.email.Send(ctx, EmailMessage{To: msg.To, ToName: msg.ToName, Subject: subject, Body: msg.Body}); err != nil {
		return Receipt{}, fmt.Errorf("messaging: send email: %w", err)
	}
	return Receipt{ProviderID: uuid.NewString(), Channel: ChannelEmail, Status: "sent"}, nil
}

// StubSender logs instead of delivering. It satisfies both SMSSender and
// EmailSender for local runs.
type StubSender struct {
	logger *logging.Logger
}

func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger.WithComponent("stub-sender")}
}

func (s *StubSender) SendMessage(_ context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error) {
	s.logger.Info("stub sender: would send sms", "to", req.To, "chars", len(req.Body))
	return &telnyxclient.MessageResponse{ID: "stub-" + uuid.NewString(), Status: "queued", Text: req.Body}, nil
}

func (s *StubSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

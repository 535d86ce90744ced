// Package telnyxclient sends SMS through the Telnyx messaging API.
package telnyxclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/internal/restclient"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.telnyx.com/v2"
	defaultUserAgent = "realty-ai-agent-sms/1.0"
	upstreamName     = "telnyxclient"
)

var tracer = otel.Tracer("realty/telnyx")

// Config controls how the Telnyx client behaves.
type Config struct {
	BaseURL            string
	APIKey             string
	MessagingProfileID string
	Timeout            time.Duration
	MaxRetries         int
	Backoff            time.Duration
	HTTPClient         *http.Client
	Logger             *logging.Logger
}

// Client wraps the Telnyx message endpoints.
type Client struct {
	rest      *restclient.Client
	profileID string
}

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("telnyxclient: API key is required")
	}
	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	rest, err := restclient.New(restclient.Config{
		Name:       upstreamName,
		BaseURL:    baseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
		HTTPClient: cfg.HTTPClient,
		Logger:     logger.WithComponent("telnyx"),
		UserAgent:  defaultUserAgent,
		Authorize: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: %w", err)
	}
	return &Client{rest: rest, profileID: cfg.MessagingProfileID}, nil
}

// SendMessage queues an outbound SMS.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "telnyx.send_message")
	defer span.End()

	profileID := req.MessagingProfileID
	if profileID == "" {
		profileID = c.profileID
	}
	body := sendBody{
		From:               req.From,
		To:                 req.To,
		Text:               req.Body,
		MediaURLs:          req.MediaURLs,
		MessagingProfileID: profileID,
	}
	data, err := c.rest.Do(ctx, http.MethodPost, "/messages", nil, body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp, err := restclient.DecodeData[MessageResponse](upstreamName, data)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("telnyx.message_id", resp.ID), attribute.String("telnyx.status", resp.Status))
	return resp, nil
}

// GetMessage fetches delivery status for a previously sent message.
func (c *Client) GetMessage(ctx context.Context, id string) (*MessageResponse, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("telnyxclient: message id required")
	}
	data, err := c.rest.Do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return restclient.DecodeData[MessageResponse](upstreamName, data)
}

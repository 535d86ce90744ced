package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/realty-ai-agent/internal/restclient"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

const (
	defaultBaseURL = "https://api.followupboss.com/v1"
	upstreamName   = "crm"
)

// Config configures the Follow Up Boss client.
type Config struct {
	APIKey     string
	BaseURL    string
	SystemName string
	SystemKey  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client talks to the Follow Up Boss people and notes endpoints.
type Client struct {
	rest *restclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("crm: API key is required")
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
		Logger:     logger.WithComponent("crm-client"),
		Authorize: func(r *http.Request) {
			r.SetBasicAuth(apiKey, "")
			if cfg.SystemName != "" {
				r.Header.Set("X-System", cfg.SystemName)
			}
			if cfg.SystemKey != "" {
				r.Header.Set("X-System-Key", cfg.SystemKey)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("crm: %w", err)
	}
	return &Client{rest: rest}, nil
}

// UpdatePerson merges fields into a person record.
func (c *Client) UpdatePerson(ctx context.Context, personID string, fields map[string]any) error {
	if strings.TrimSpace(personID) == "" {
		return errors.New("crm: person id required")
	}
	if len(fields) == 0 {
		return nil
	}
	if _, err := c.rest.Do(ctx, http.MethodPut, "/people/"+url.PathEscape(personID), nil, fields); err != nil {
		return fmt.Errorf("crm: update person %s: %w", personID, err)
	}
	return nil
}

// AddNote attaches a note to a person.
func (c *Client) AddNote(ctx context.Context, personID, subject, body string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(personID), 10, 64)
	if err != nil {
		return fmt.Errorf("crm: person id %q is not numeric", personID)
	}
	payload := map[string]any{
		"personId": id,
		"subject":  subject,
		"body":     body,
	}
	if _, err := c.rest.Do(ctx, http.MethodPost, "/notes", nil, payload); err != nil {
		return fmt.Errorf("crm: add note for %s: %w", personID, err)
	}
	return nil
}

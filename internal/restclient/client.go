// Package restclient is the retrying JSON-over-HTTP caller shared by the
// SMS and CRM integrations.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// Config controls retries and authentication for one upstream API.
type Config struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
	// Authorize decorates every request, e.g. with a bearer token.
	Authorize func(*http.Request)
}

type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
	authorize  func(*http.Request)
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("restclient: base url is required")
	}
	name := cfg.Name
	if name == "" {
		name = "restclient"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		name:       name,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    backoff,
		logger:     logger,
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		authorize:  cfg.Authorize,
	}, nil
}

// Do sends body (JSON-encoded when non-nil) and returns the raw response on
// 2xx. 429 and 5xx responses and transient transport errors are retried
// with exponential backoff.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
		}
	}

	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.name, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if c.authorize != nil {
			c.authorize(req)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !ShouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("%s: http error: %w", c.name, err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%s: read response: %w", c.name, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(c.name, resp.StatusCode, data)
		if attempt < c.maxRetries && ShouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: request failed without response", c.name)
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt, status int, err error) {
	c.logger.Warn("upstream retry",
		"upstream", c.name,
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

// ShouldRetry reports whether a status or transport error is transient.
func ShouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// APIError is a non-2xx upstream response.
type APIError struct {
	Upstream   string `json:"-"`
	StatusCode int    `json:"-"`
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"errorMessage,omitempty"`
}

func (e *APIError) Error() string {
	for _, msg := range []string{e.Title, e.Detail, e.Message} {
		if msg != "" {
			return fmt.Sprintf("%s: %s (status=%d)", e.Upstream, msg, e.StatusCode)
		}
	}
	return fmt.Sprintf("%s: http status %d", e.Upstream, e.StatusCode)
}

func decodeAPIError(upstream string, status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{Upstream: upstream, StatusCode: status, Detail: strings.TrimSpace(string(body))}
	}
	parsed.Upstream = upstream
	parsed.StatusCode = status
	return &parsed
}

// DecodeData unwraps a {"data": ...} envelope.
func DecodeData[T any](upstream string, body []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", upstream, err)
	}
	return &wrapper.Data, nil
}

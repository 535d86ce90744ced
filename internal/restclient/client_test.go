package restclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = "http://unused.invalid"
	if server != nil {
		cfg.BaseURL = server.URL
	}
	cfg.Name = "testapi"
	cfg.Timeout = 2 * time.Second
	cfg.Logger = logging.Discard()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected base url validation error")
	}
	client, err := New(Config{BaseURL: "https://example.com/api/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.baseURL != "https://example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second || client.maxRetries != 0 {
		t.Fatalf("unexpected defaults: %#v", client)
	}
}

func TestDoSendsJSONAndAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/people/7" || r.URL.Query().Get("merge") != "true" {
			t.Fatalf("unexpected url %s", r.URL.String())
		}
		if r.Header.Get("X-Test-Key") != "secret" {
			t.Fatalf("missing auth header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("missing content type")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"stage":"Lead"}` {
			t.Fatalf("unexpected body %s", body)
		}
		w.Write([]byte(`{"data":{"id":"7"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{
		Authorize: func(r *http.Request) { r.Header.Set("X-Test-Key", "secret") },
	})
	data, err := client.Do(context.Background(), http.MethodPut, "people/7", map[string][]string{"merge": {"true"}}, map[string]string{"stage": "Lead"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	out, err := DecodeData[struct {
		ID string `json:"id"`
	}]("testapi", data)
	if err != nil || out.ID != "7" {
		t.Fatalf("unexpected decode %#v %v", out, err)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"title":"busy"}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2, Backoff: 5 * time.Millisecond})
	if _, err := client.Do(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("do after retry: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMessage":"bad field"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 3, Backoff: time.Millisecond})
	_, err := client.Do(context.Background(), http.MethodPost, "/x", nil, map[string]string{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected api error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad field") {
		t.Fatalf("expected upstream message, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(0, timeoutErr{}) {
		t.Fatalf("expected timeout errors to retry")
	}
	if ShouldRetry(0, context.Canceled) {
		t.Fatalf("context cancel should not retry")
	}
	if !ShouldRetry(http.StatusTooManyRequests, nil) || !ShouldRetry(http.StatusBadGateway, nil) {
		t.Fatalf("429 and 5xx should retry")
	}
	if ShouldRetry(http.StatusNotFound, nil) {
		t.Fatalf("4xx should not retry")
	}
}

func TestAPIErrorFallbackDetail(t *testing.T) {
	err := decodeAPIError("testapi", 502, []byte("gateway exploded"))
	if !strings.Contains(err.Error(), "gateway exploded") || !strings.Contains(err.Error(), "502") {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if got := (&APIError{Upstream: "testapi", StatusCode: 500}).Error(); got != "testapi: http status 500" {
		t.Fatalf("unexpected fallback %q", got)
	}
}

func TestDoSleepCancellation(t *testing.T) {
	client := newTestClient(t, nil, Config{MaxRetries: 1, Backoff: 50 * time.Millisecond})
	client.httpClient = &http.Client{Transport: badGatewayTransport{}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if _, err := client.Do(ctx, http.MethodGet, "/retry", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation during backoff, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type badGatewayTransport struct{}

func (badGatewayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is a thin HTTP client for the collaboration REST API.
// It handles Bearer token authentication, JSON marshaling, request ids and
// automatic retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	wsBaseURL  string
	token      string
	httpClient *http.Client
	maxRetries int
	logger     *zap.SugaredLogger
}

// Option alters the default configuration of a Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(c *Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.httpClient = hc
	})
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		c.httpClient.Timeout = d
	})
}

// WithMaxRetries sets how many times a rate limited request is retried.
func WithMaxRetries(n int) Option {
	return optionFunc(func(c *Client) {
		c.maxRetries = n
	})
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.SugaredLogger) Option {
	return optionFunc(func(c *Client) {
		c.logger = logger
	})
}

// WithWebSocketURL overrides the root used for chat sockets.
func WithWebSocketURL(raw string) Option {
	return optionFunc(func(c *Client) {
		if raw != "" {
			c.wsBaseURL = strings.TrimRight(raw, "/")
		}
	})
}

// NewClient creates a new API client. The baseURL is the root of the API
// (e.g. http://localhost:8000) and token is sent as a Bearer credential.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		logger:     zap.NewNop().Sugar(),
	}
	c.wsBaseURL = websocketBase(c.baseURL)

	for _, opt := range opts {
		opt.apply(c)
	}

	return c
}

// BaseURL returns the REST root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ChatSocketURL returns the WebSocket endpoint for chatID.
func (c *Client) ChatSocketURL(chatID int64) string {
	return fmt.Sprintf("%s/ws/chat/%d/", c.wsBaseURL, chatID)
}

// websocketBase maps http(s) to ws(s), keeping host and path.
func websocketBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

// TenantURL prefixes the host of base with the tenant subdomain, so
// http://localhost:8000 with tenant "acme" becomes http://acme.localhost:8000.
func TenantURL(base, tenant string) (string, error) {
	if tenant == "" {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", base, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}

	u.Host = tenant + "." + u.Host
	return strings.TrimRight(u.String(), "/"), nil
}

// payload is an encoded request body with its content type.
type payload struct {
	data        []byte
	contentType string
}

// jsonPayload marshals v into a JSON payload.
func jsonPayload(v interface{}) (*payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}
	return &payload{data: data, contentType: "application/json"}, nil
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	path string,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body (nil for none) and
// unmarshals the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body interface{},
	result interface{},
) error {
	var p *payload
	if body != nil {
		var err error
		if p, err = jsonPayload(body); err != nil {
			return err
		}
	}
	return c.do(ctx, http.MethodPost, path, p, result)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON decoding.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body *payload,
	result interface{},
) error {
	url := c.baseURL + path
	requestID := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// The body reader is rebuilt on every attempt since it is consumed.
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body.data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if body != nil {
			req.Header.Set("Content-Type", body.contentType)
		}

		c.logger.Debugw("api request",
			"method", method, "path", path, "request_id", requestID, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			var envelope apiErrorBody
			_ = json.Unmarshal(respBody, &envelope)
			msg := envelope.message()
			if msg == "" {
				msg = "check your access token"
			}
			return &AuthError{Method: method, Path: path, Message: msg}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Body:       strings.TrimSpace(string(respBody)),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

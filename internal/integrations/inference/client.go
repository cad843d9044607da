// Package inference is a client for Hugging Face style text-generation
// endpoints.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultModelID     = "mistralai/Mistral-7B-Instruct-v0.2"
	DefaultTimeout     = 20 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 600 * time.Millisecond
	DefaultBackoffMax  = 10 * time.Second

	defaultEndpointBase = "https://api-inference.huggingface.co/models/"
	maxResponseBytes    = 1 << 20
	maxErrorBodyBytes   = 4096
)

var (
	// ErrNotConfigured means no API credential could be resolved.
	ErrNotConfigured = errors.New("inference: api token not configured")
	// ErrMalformedResponse means a 2xx body could not be interpreted.
	ErrMalformedResponse = errors.New("inference: malformed response")
)

// EndpointForModel returns the hosted inference URL for a model id.
func EndpointForModel(modelID string) string {
	modelID = strings.Trim(strings.TrimSpace(modelID), "/")
	if modelID == "" {
		modelID = DefaultModelID
	}
	return defaultEndpointBase + modelID
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NetworkError wraps transport failures and per-attempt timeouts.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "inference: network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Parameters are the generation parameters sent with every request.
type Parameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

// DefaultParameters returns the generation settings used when none are set.
func DefaultParameters() Parameters {
	return Parameters{MaxNewTokens: 512, Temperature: 0.7, ReturnFullText: false}
}

type generateRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters Parameters      `json:"parameters"`
	Options    generateOptions `json:"options"`
}

type generateOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// RetryHook observes each retry before the backoff sleep. statusCode is 0
// for transport failures.
type RetryHook func(attempt, statusCode int, delay time.Duration)

// Client calls a single inference endpoint with bounded retries.
type Client struct {
	endpoint   string
	tokens     TokenSource
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    backoff
	limiter    *rate.Limiter
	params     Parameters
	logger     *slog.Logger
	onRetry    RetryHook

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each attempt, not the whole call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoff.base = base
		}
		if max > 0 {
			c.backoff.max = max
		}
	}
}

// WithRateLimit paces outbound attempts. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithParameters(p Parameters) Option {
	return func(c *Client) {
		c.params = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRetryHook(hook RetryHook) Option {
	return func(c *Client) {
		c.onRetry = hook
	}
}

// NewClient creates a Client for endpoint using tokens for authorization.
func NewClient(endpoint string, tokens TokenSource, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("inference: endpoint must not be empty")
	}
	if tokens == nil {
		return nil, errors.New("inference: token source must not be nil")
	}
	c := &Client{
		endpoint:   endpoint,
		tokens:     tokens,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		backoff:    newBackoff(DefaultBackoffBase, DefaultBackoffMax),
		params:     DefaultParameters(),
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// Generate sends prompt to the endpoint and decodes the generated text.
// Retryable failures (429, 500, 502, 503, 504 and transport errors) are
// retried up to the configured ceiling; the last error is returned.
func (c *Client) Generate(ctx context.Context, prompt string) (Reply, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			err = fmt.Errorf("%w: %w", ErrNotConfigured, err)
		}
		return Reply{}, err
	}

	body, err := json.Marshal(generateRequest{
		Inputs:     prompt,
		Parameters: c.params,
		Options:    generateOptions{WaitForModel: true},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("inference: marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Reply{}, &NetworkError{Err: err}
			}
		}

		raw, err := c.do(ctx, token, body)
		if err == nil {
			return DecodeReply(raw)
		}
		if attempt >= c.maxRetries || !retryable(err) || ctx.Err() != nil {
			return Reply{}, err
		}

		delay := c.backoff.delay(attempt)
		status := 0
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
			if statusErr.RetryAfter > 0 {
				delay = min(statusErr.RetryAfter, c.backoff.max)
			}
		}
		c.logger.WarnContext(ctx, "inference: retrying request",
			slog.Int("attempt", attempt+1),
			slog.Int("status", status),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if c.onRetry != nil {
			c.onRetry(attempt+1, status, delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Reply{}, &NetworkError{Err: err}
		}
	}
}

func (c *Client) do(ctx context.Context, token string, body []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response body: %w", err)}
	}
	return buf, nil
}

func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// parseRetryAfter accepts the delta-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

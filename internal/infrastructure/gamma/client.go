package gamma

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://gamma-api.polymarket.com"

// Client provides access to the Gamma REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries  int
	retryMin    time.Duration
	retryMax    time.Duration
	eventsLimit int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Gamma client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(10), 10),
		maxRetries:  3,
		retryMin:    200 * time.Millisecond,
		retryMax:    8 * time.Second,
		eventsLimit: 100,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a failed request is retried and the first
// backoff step; the step doubles per attempt up to 8s.
func WithRetries(max int, first time.Duration) ClientOption {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
		if first > 0 {
			c.retryMin = first
		}
	}
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithEventsLimit sets how many recent events discovery asks for.
func WithEventsLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.eventsLimit = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

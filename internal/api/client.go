package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rickgao/price-streamer/internal/auth"
)

// Client provides access to the quote provider REST and streaming APIs.
type Client struct {
	baseURL   string
	streamURL string
	creds     *auth.Credentials

	httpClient   *http.Client
	streamClient *http.Client // No overall timeout; the stream is long-lived
	logger       *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new provider client.
func NewClient(baseURL, streamURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		streamURL: streamURL,
		creds:     creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the REST client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for REST calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStreamClient sets a custom HTTP client for the price stream.
func WithStreamClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.streamClient = hc
	}
}

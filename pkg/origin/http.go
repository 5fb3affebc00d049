package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes bounds how much of an upstream body is cached.
const DefaultMaxBodyBytes = 8 << 20

// HTTPConfig holds the upstream HTTP origin configuration.
type HTTPConfig struct {
	// BaseURL is prefixed to every request path, e.g. "http://origin:8080".
	BaseURL string

	// Timeout bounds one attempt including reading the body.
	Timeout time.Duration

	// MaxBodyBytes is the largest body accepted; larger bodies fail without retry.
	MaxBodyBytes int64

	// UserAgent is sent with every upstream request.
	UserAgent string

	// Retry controls retries of server and network errors.
	Retry RetryConfig

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTP fetches payloads from an upstream HTTP server.
type HTTP struct {
	base   string
	client *http.Client
	config HTTPConfig
	logger zerolog.Logger
}

// NewHTTP creates an HTTP origin.
func NewHTTP(cfg HTTPConfig, logger zerolog.Logger) (*HTTP, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "edge-cache"
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTP{
		base:   strings.TrimRight(u.String(), "/"),
		client: client,
		config: cfg,
		logger: logger.With().Str("origin", "http").Logger(),
	}, nil
}

// Name implements Backend.
func (h *HTTP) Name() string {
	return "http"
}

// Fetch GETs base URL + path. Server and network errors are retried.
func (h *HTTP) Fetch(ctx context.Context, path string) (p cache.Payload, err error) {
	start := time.Now()
	defer func() { observe(h.Name(), start, err) }()

	target := h.base + path

	err = retryWithBackoff(ctx, h.config.Retry, h.logger, func() error {
		body, fetchErr := h.fetchOnce(ctx, target)
		if fetchErr != nil {
			return fetchErr
		}
		p = cache.NewPayload(body)
		return nil
	})
	if err != nil {
		return cache.Payload{}, err
	}
	return p, nil
}

func (h *HTTP) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &Error{Origin: h.Name(), Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &Error{Origin: h.Name(), Class: ErrorClassServer, StatusCode: resp.StatusCode, Message: resp.Status}
	case resp.StatusCode >= 400:
		return nil, &Error{Origin: h.Name(), Class: ErrorClassClient, StatusCode: resp.StatusCode, Message: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &Error{Origin: h.Name(), Class: ErrorClassServer, StatusCode: resp.StatusCode, Message: "unexpected status " + resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.config.MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{Origin: h.Name(), Class: ErrorClassNetwork, Message: "read body", Err: err}
	}
	if int64(len(body)) > h.config.MaxBodyBytes {
		return nil, &Error{Origin: h.Name(), Class: ErrorClassClient, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("body exceeds %d bytes", h.config.MaxBodyBytes)}
	}
	return body, nil
}

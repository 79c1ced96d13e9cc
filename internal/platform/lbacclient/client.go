// Package lbacclient fetches location-wise counts from the OpenMRS
// location-based access REST resources. Every call issues exactly one GET:
// there are no retries, no caching and no de-duplication.
package lbacclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/middleware"
	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

const maxBodyBytes = 4 << 20

// TokenSource mints a bearer token per request.
type TokenSource interface {
	Issue() (string, error)
}

type Config struct {
	// Origin is the server root, e.g. "http://localhost:8080/openmrs".
	Origin   string
	Username string
	Password string
	Tokens   TokenSource
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	origin   string
	username string
	password string
	tokens   TokenSource
	http     *http.Client
	logger   zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("lbacclient: origin is required")
	}
	if !strings.HasPrefix(cfg.Origin, "http://") && !strings.HasPrefix(cfg.Origin, "https://") {
		return nil, fmt.Errorf("lbacclient: origin %q must be an http(s) URL", cfg.Origin)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		origin:   strings.TrimRight(cfg.Origin, "/"),
		username: cfg.Username,
		password: cfg.Password,
		tokens:   cfg.Tokens,
		http:     hc,
		logger:   cfg.Logger,
	}, nil
}

// Origin returns the configured server root.
func (c *Client) Origin() string {
	return c.origin
}

type envelope struct {
	Results *counts.Counts `json:"results"`
}

// FetchCounts issues one GET for resourcePath and returns the response's
// "results" object in server key order. An absent or null "results" yields
// an empty mapping.
func (c *Client) FetchCounts(ctx context.Context, resourcePath string) (counts.Counts, error) {
	if strings.TrimSpace(resourcePath) == "" {
		return nil, ErrEmptyResourcePath
	}

	url := ResourceURL(c.origin, resourcePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(middleware.RequestIDHeader, rid)
	}

	switch {
	case c.tokens != nil:
		token, err := c.tokens.Issue()
		if err != nil {
			return nil, fmt.Errorf("issue service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("fetch counts")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, url, err)
	}
	if env.Results == nil {
		return counts.Counts{}, nil
	}
	return *env.Results, nil
}

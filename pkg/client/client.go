package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/agrilo/pkg/log"
	"github.com/cuemby/agrilo/pkg/metrics"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	refreshPath = "/auth/refresh"

	// DefaultTimeout applies when Config.Timeout is zero
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "agrilo-cli"
)

// Credentials holds the access token attached to authenticated requests
type Credentials interface {
	Token() string
	SetToken(token string) error
	Clear() error
}

// Config configures a Client
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCookieJar replaces the jar that carries the refresh cookie
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// Client is the single path for every backend call. It attaches the access
// token, and on a 401 refreshes the token once and re-issues the request.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	jar       http.CookieJar
	creds     Credentials
	logger    zerolog.Logger

	flights singleflight.Group

	mu             sync.RWMutex
	language       string
	onSessionEnded func(reason error)
}

// New creates a Client for the backend at cfg.BaseURL
func New(cfg Config, creds Credentials, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: expected http(s)://host[/prefix]", cfg.BaseURL)
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:   base.String(),
		userAgent: userAgent,
		creds:     creds,
		logger:    log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.jar = jar
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeout}
	}
	if c.http.Jar == nil {
		hc := *c.http
		hc.Jar = c.jar
		c.http = &hc
	}

	return c, nil
}

// BaseURL returns the normalized backend URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetLanguage sets the Accept-Language sent with every request
func (c *Client) SetLanguage(lang string) {
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
}

// Language returns the configured language, or "" when unset
func (c *Client) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// OnSessionEnded registers fn to run when a refresh fails and the stored
// credentials have been cleared. It runs once per failed refresh.
func (c *Client) OnSessionEnded(fn func(reason error)) {
	c.mu.Lock()
	c.onSessionEnded = fn
	c.mu.Unlock()
}

// Do sends req. A 401 on an authenticated request triggers one refresh and
// one retry; the caller never sees the intermediate 401.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ClientRequestDuration, req.Method)

	retried := false
	for {
		token := ""
		if !req.NoAuth {
			token = c.creds.Token()
		}

		resp, err := c.send(ctx, req, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			if err := classify(resp); err != nil {
				return nil, err
			}
			return resp, nil
		}

		if isRefresh(req.Path) || retried {
			return nil, authExpired(resp, nil)
		}
		if req.NoAuth {
			// Bad credentials on login, not an expired session
			return nil, classify(resp)
		}
		retried = true

		// Another request may have refreshed, or ended the session, while
		// this one was in flight
		current := c.creds.Token()
		if token != "" && current == "" {
			return nil, authExpired(resp, nil)
		}
		if current != "" && current != token {
			c.logger.Debug().Str("path", req.Path).Msg("Token changed in flight, retrying")
			metrics.RetriesTotal.Inc()
			continue
		}

		if _, err := c.Refresh(ctx); err != nil {
			return nil, authExpired(resp, err)
		}
		metrics.RetriesTotal.Inc()
	}
}

// Refresh obtains a new access token using the refresh cookie. Concurrent
// callers share a single request. On failure the credentials are cleared
// and the session-ended handler runs.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	v, err, shared := c.flights.Do("refresh", func() (any, error) {
		// The flight outlives any single caller's cancellation
		return c.refresh(context.WithoutCancel(ctx))
	})
	if shared {
		metrics.RefreshTotal.WithLabelValues(metrics.OutcomeShared).Inc()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	c.logger.Debug().Msg("Refreshing access token")

	token, err := c.requestToken(ctx)
	if err == nil {
		err = c.creds.SetToken(token)
	}
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.logger.Warn().Err(err).Msg("Token refresh failed, ending session")

		if clearErr := c.creds.Clear(); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("Failed to clear credentials")
		}
		c.mu.RLock()
		fn := c.onSessionEnded
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
		return "", err
	}

	metrics.RefreshTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	c.logger.Debug().Msg("Access token refreshed")
	return token, nil
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: refreshPath, NoAuth: true})
	if err != nil {
		return "", err
	}
	var auth types.AuthResponse
	if err := resp.Decode(&auth); err != nil {
		return "", err
	}
	if auth.AccessToken == "" {
		return "", &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: "refresh response has no access_token"}
	}
	return auth.AccessToken, nil
}

// send performs a single HTTP round trip
func (c *Client) send(ctx context.Context, req *Request, token string) (*Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "failed to create request", Err: err}
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if lang := c.Language(); lang != "" {
		httpReq.Header.Set("Accept-Language", lang)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("X-Request-ID", requestID)
	logger := log.WithRequestID("client", requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		logger.Debug().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("Request failed")
		return nil, &Error{Kind: KindNetwork, Message: "unable to reach server", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	metrics.ClientRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request completed")

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func isRefresh(path string) bool {
	return strings.HasSuffix(strings.TrimRight(path, "/"), refreshPath)
}

// call sends req and decodes a successful response into out when non-nil
func (c *Client) call(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

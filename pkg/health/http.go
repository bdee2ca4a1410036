package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a probe when none is set
const DefaultTimeout = 5 * time.Second

// APIChecker probes the backend banner at the root of the API origin
type APIChecker struct {
	// URL is the banner URL, e.g. "http://localhost:5000/"
	URL string

	// Client is the HTTP client to use
	Client *http.Client
}

// NewAPIChecker creates a checker for the backend behind apiURL, which may
// carry a path prefix such as /api
func NewAPIChecker(apiURL string) (*APIChecker, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", apiURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", apiURL)
	}

	root := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	return &APIChecker{
		URL:    root.String(),
		Client: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// WithTimeout sets the HTTP client timeout
func (c *APIChecker) WithTimeout(timeout time.Duration) *APIChecker {
	c.Client.Timeout = timeout
	return c
}

// Target returns the probed URL
func (c *APIChecker) Target() string {
	return c.URL
}

// Check fetches the banner. Any 2xx or 3xx answer counts as reachable.
func (c *APIChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := func(healthy bool, status int, msg string) Result {
		return Result{
			Healthy:    healthy,
			Message:    msg,
			StatusCode: status,
			CheckedAt:  start,
			Duration:   time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return result(false, 0, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return result(false, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return result(false, resp.StatusCode, status)
	}

	var banner struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &banner) == nil && banner.Message != "" {
		return result(true, resp.StatusCode, banner.Message)
	}
	return result(true, resp.StatusCode, status)
}

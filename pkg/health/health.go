package health

import (
	"context"
	"time"
)

// Result is the outcome of a probe
type Result struct {
	Healthy    bool          `json:"healthy"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
	Duration   time.Duration `json:"duration"`
}

// Checker probes a single target
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Target returns what is being probed
	Target() string
}

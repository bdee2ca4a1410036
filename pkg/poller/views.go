package poller

import (
	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/types"
)

// View names, also used as snapshot cache keys
const (
	ViewAnalytics = "analytics"
	ViewSoil      = "soil"
)

// NewAnalyticsView polls the dashboard aggregate
func NewAnalyticsView(c *client.Client, opts ...Option) *Poller[*types.AnalyticsSnapshot] {
	return New[*types.AnalyticsSnapshot](ViewAnalytics, c.AnalyticsSummary, opts...)
}

// NewSoilView polls the latest sensor reading
func NewSoilView(c *client.Client, opts ...Option) *Poller[*types.SoilReading] {
	return New[*types.SoilReading](ViewSoil, c.LatestSoil, opts...)
}

package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/cuemby/agrilo/pkg/types"
)

// LatestSoil fetches the most recent sensor reading.
// A backend with no readings yet answers 404, see IsNotFound.
func (c *Client) LatestSoil(ctx context.Context) (*types.SoilReading, error) {
	var out types.SoilReading
	if err := c.call(ctx, newGet("/soil/latest", nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SoilHistory lists recent sensor readings, newest first
func (c *Client) SoilHistory(ctx context.Context, limit int) ([]types.SoilReading, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var out []types.SoilReading
	if err := c.call(ctx, newGet("/soil/history", query), &out); err != nil {
		return nil, err
	}
	return out, nil
}

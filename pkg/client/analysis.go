package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cuemby/agrilo/pkg/types"
)

// envelope wraps results the backend reports as {status, data}
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

const statusSuccess = "success"

// DetectDisease uploads a leaf image for disease detection
func (c *Client) DetectDisease(ctx context.Context, filename string, image io.Reader) (*types.DiseaseResult, error) {
	req, err := newMultipart("/analysis/detect", "file", filename, image)
	if err != nil {
		return nil, err
	}

	var out envelope[types.DiseaseResult]
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Status != statusSuccess {
		return nil, &Error{Kind: KindServer, Message: fmt.Sprintf("analysis failed: %s", out.Data.Disease)}
	}
	return &out.Data, nil
}

// AnalyzeRoot uploads a root image for diagnosis
func (c *Client) AnalyzeRoot(ctx context.Context, filename string, image io.Reader) (*types.RootDiagnosis, error) {
	req, err := newMultipart("/root/analyze", "file", filename, image)
	if err != nil {
		return nil, err
	}

	var out types.RootDiagnosis
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalysisHistory lists recent scans, newest first
func (c *Client) AnalysisHistory(ctx context.Context, limit int) ([]types.AnalysisRecord, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var out []types.AnalysisRecord
	if err := c.call(ctx, newGet("/analysis/history", query), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SimilarCases lists scans from other farms with the same disease
func (c *Client) SimilarCases(ctx context.Context, disease string) ([]types.SimilarCase, error) {
	disease = strings.TrimSpace(disease)
	if disease == "" {
		return nil, fmt.Errorf("disease is required")
	}

	var out []types.SimilarCase
	if err := c.call(ctx, newGet("/analysis/similar", url.Values{"disease": {disease}}), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeSoil assesses a soil sample and recommends a crop
func (c *Client) AnalyzeSoil(ctx context.Context, sample types.SoilSample) (*types.SoilAnalysis, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	req, err := newJSON(http.MethodPost, "/analysis/soil/analyze", sample)
	if err != nil {
		return nil, err
	}

	var out envelope[types.SoilAnalysis]
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Status != statusSuccess {
		return nil, &Error{Kind: KindServer, Message: "soil analysis failed"}
	}
	return &out.Data, nil
}

// AnalyticsSummary fetches the dashboard aggregate
func (c *Client) AnalyticsSummary(ctx context.Context) (*types.AnalyticsSnapshot, error) {
	var out types.AnalyticsSnapshot
	if err := c.call(ctx, newGet("/analytics/summary", nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

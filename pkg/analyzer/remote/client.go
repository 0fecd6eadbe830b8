// Package remote implements analyzer.Service over the bias analysis
// service's JSON HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/models"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Endpoint paths, relative to the base URL.
const (
	PathPreprocessing = "/analyze/preprocessing"
	PathModelLevel    = "/analyze/model-level"
	PathInteractive   = "/analyze/interactive"
	PathEvaluation    = "/analyze/evaluation"
	PathReports       = "/reports"
	PathConfiguration = "/configuration"
	PathDashboard     = "/dashboard"
	PathExplain       = "/explain"
)

// ErrIncompleteResult is returned when a layer endpoint answers 2xx without a
// bias_score.
var ErrIncompleteResult = errors.New("incomplete layer result")

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout takes precedence.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit caps outgoing requests at rps per second with the given burst.
// A non-positive rps leaves the client unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client talks to the bias analysis service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ analyzer.Service = (*Client)(nil)

// New creates a Client for baseURL. A zero timeout means no client-side timeout.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid analyzer URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid analyzer URL %q: must be absolute", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) AnalyzePreprocessing(ctx context.Context, req *analyzer.PreprocessingRequest) (*models.PreprocessingResult, error) {
	var out models.PreprocessingResult
	if err := c.analyzeLayer(ctx, PathPreprocessing, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeModelLevel(ctx context.Context, req *analyzer.ModelLevelRequest) (*models.ModelLevelResult, error) {
	var out models.ModelLevelResult
	if err := c.analyzeLayer(ctx, PathModelLevel, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeInteractive(ctx context.Context, req *analyzer.InteractiveRequest) (*models.InteractiveResult, error) {
	var out models.InteractiveResult
	if err := c.analyzeLayer(ctx, PathInteractive, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeEvaluation(ctx context.Context, req *analyzer.EvaluationRequest) (*models.EvaluationResult, error) {
	var out models.EvaluationResult
	if err := c.analyzeLayer(ctx, PathEvaluation, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateReport asks the service to aggregate analyses into report content.
func (c *Client) GenerateReport(ctx context.Context, req *analyzer.ReportRequest) (*models.ReportContent, error) {
	var out models.ReportContent
	if err := c.do(ctx, http.MethodPost, PathReports, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConfiguration forwards a scoring policy change.
func (c *Client) UpdateConfiguration(ctx context.Context, update analyzer.ConfigurationUpdate) error {
	return c.do(ctx, http.MethodPut, PathConfiguration, update, nil)
}

// Dashboard fetches the aggregated dashboard for a viewer and time range.
func (c *Client) Dashboard(ctx context.Context, opts models.DashboardOptions) (*models.DashboardData, error) {
	q := url.Values{}
	q.Set("viewer_id", opts.ViewerID)
	q.Set("time_range", opts.TimeRange)
	var out models.DashboardData
	if err := c.do(ctx, http.MethodGet, PathDashboard+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Explain asks why a result was flagged for a group.
func (c *Client) Explain(ctx context.Context, req *analyzer.ExplainRequest) (*models.Explanation, error) {
	var out models.Explanation
	if err := c.do(ctx, http.MethodPost, PathExplain, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// analyzeLayer posts a layer request and decodes the result into out. The
// body must carry a bias_score; an empty body or a missing or null score is
// ErrIncompleteResult rather than a zero score.
func (c *Client) analyzeLayer(ctx context.Context, path string, in, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, in, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s: empty body: %w", path, ErrIncompleteResult)
	}
	var score struct {
		BiasScore *float64 `json:"bias_score"`
	}
	if err := json.Unmarshal(raw, &score); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if score.BiasScore == nil {
		return fmt.Errorf("%s: missing bias_score: %w", path, ErrIncompleteResult)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("analyzer call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Package alert delivers notifications for analyses whose alert level meets
// the configured minimum.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/models"
)

// Alert is the notification payload for one flagged analysis.
type Alert struct {
	ID              string            `json:"alert_id"`
	SubjectID       string            `json:"session_id"`
	Level           models.AlertLevel `json:"alert_level"`
	Score           float64           `json:"bias_score"`
	Confidence      float64           `json:"confidence"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// FromResult builds an alert for r.
func FromResult(id string, r *models.AnalysisResult) Alert {
	return Alert{
		ID:              id,
		SubjectID:       r.SubjectID,
		Level:           r.AlertLevel,
		Score:           r.OverallBiasScore,
		Confidence:      r.Confidence,
		Recommendations: slices.Clone(r.Recommendations),
		Timestamp:       r.Timestamp,
	}
}

// Dispatcher delivers alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// LogDispatcher writes alerts to a zap logger.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher returns a dispatcher that logs at warn level.
func NewLogDispatcher(l *zap.Logger) *LogDispatcher {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogDispatcher{logger: l}
}

// Dispatch logs a.
func (d *LogDispatcher) Dispatch(_ context.Context, a Alert) error {
	d.logger.Warn("bias alert",
		zap.String("alert_id", a.ID),
		zap.String("subject_id", a.SubjectID),
		zap.String("alert_level", string(a.Level)),
		zap.Float64("bias_score", a.Score),
		zap.Float64("confidence", a.Confidence),
		zap.Int("recommendations", len(a.Recommendations)),
	)
	return nil
}

// WebhookError is returned when the webhook answers with a non-2xx status.
type WebhookError struct {
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// WebhookDispatcher POSTs alerts as JSON to a URL.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a dispatcher posting to url. A non-positive
// timeout falls back to five seconds.
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookDispatcher{url: url, client: &http.Client{Timeout: timeout}}
}

// Dispatch posts a to the webhook.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &WebhookError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Multi fans an alert out to every dispatcher. All are attempted; their
// errors are joined.
type Multi []Dispatcher

// Dispatch delivers a to every dispatcher in order.
func (m Multi) Dispatch(ctx context.Context, a Alert) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

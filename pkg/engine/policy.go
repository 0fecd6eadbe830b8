package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/models"
)

// ThresholdsUpdate is a partial threshold change. Nil fields keep their
// current value.
type ThresholdsUpdate struct {
	Warning  *float64 `json:"warning,omitempty"`
	High     *float64 `json:"high,omitempty"`
	Critical *float64 `json:"critical,omitempty"`
}

// merge applies u on top of t.
func (u ThresholdsUpdate) merge(t models.Thresholds) models.Thresholds {
	if u.Warning != nil {
		t.Warning = *u.Warning
	}
	if u.High != nil {
		t.High = *u.High
	}
	if u.Critical != nil {
		t.Critical = *u.Critical
	}
	return t
}

// UpdateThresholds merges u into the active thresholds and applies the
// result if it is still ascending. Cached results keep the level they were
// given. The analysis service is told about the change on a best-effort basis.
func (e *Engine) UpdateThresholds(ctx context.Context, u ThresholdsUpdate) (models.Thresholds, error) {
	e.mu.Lock()
	if e.status != stateOpen {
		e.mu.Unlock()
		return models.Thresholds{}, biaserr.ErrNotInitialized
	}
	merged := u.merge(e.cfg.Thresholds)
	if err := merged.Validate(); err != nil {
		e.mu.Unlock()
		return models.Thresholds{}, err
	}
	e.cfg.Thresholds = merged
	e.mu.Unlock()

	e.logger.Info("thresholds updated",
		zap.Float64("warning", merged.Warning),
		zap.Float64("high", merged.High),
		zap.Float64("critical", merged.Critical),
	)
	e.forward(ctx, analyzer.ConfigurationUpdate{Thresholds: &merged, UpdatedAt: e.now().UTC()})
	return merged, nil
}

// UpdateWeights replaces the layer weights. They must sum to 1.
func (e *Engine) UpdateWeights(ctx context.Context, w models.LayerWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.status != stateOpen {
		e.mu.Unlock()
		return biaserr.ErrNotInitialized
	}
	e.cfg.Weights = w
	e.mu.Unlock()

	e.logger.Info("weights updated", zap.Any("weights", w))
	e.forward(ctx, analyzer.ConfigurationUpdate{Weights: &w, UpdatedAt: e.now().UTC()})
	return nil
}

func (e *Engine) forward(ctx context.Context, u analyzer.ConfigurationUpdate) {
	if err := e.svc.UpdateConfiguration(ctx, u); err != nil {
		e.logger.Warn("analysis service configuration update failed", zap.Error(err))
	}
}

package models

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/pario-ai/fairlens/pkg/biaserr"
)

// AlertLevel is the discrete severity derived from an overall bias score.
type AlertLevel string

const (
	AlertLow      AlertLevel = "low"
	AlertMedium   AlertLevel = "medium"
	AlertHigh     AlertLevel = "high"
	AlertCritical AlertLevel = "critical"
)

// Rank orders alert levels from 0 (low) to 3 (critical); unknown levels rank -1.
func (a AlertLevel) Rank() int {
	switch a {
	case AlertLow:
		return 0
	case AlertMedium:
		return 1
	case AlertHigh:
		return 2
	case AlertCritical:
		return 3
	default:
		return -1
	}
}

// ParseAlertLevel converts a string into an AlertLevel.
func ParseAlertLevel(s string) (AlertLevel, error) {
	a := AlertLevel(s)
	if a.Rank() < 0 {
		return "", biaserr.Validation(fmt.Sprintf("unknown alert level %q", s), "alert_level")
	}
	return a, nil
}

// Thresholds are the ascending score cut-offs for medium, high and critical alerts.
type Thresholds struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	High     float64 `json:"high" yaml:"high"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Validate enforces 0 <= warning < high < critical <= 1.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Warning, t.High, t.Critical} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return biaserr.Configuration("thresholds", "values must be within [0,1], got %v/%v/%v", t.Warning, t.High, t.Critical)
		}
	}
	if !(t.Warning < t.High && t.High < t.Critical) {
		return biaserr.Configuration("thresholds", "must be ascending (warning < high < critical), got %v/%v/%v", t.Warning, t.High, t.Critical)
	}
	return nil
}

// Level maps a score to an alert level. A score equal to a threshold maps to
// the higher tier.
func (t Thresholds) Level(score float64) AlertLevel {
	switch {
	case score >= t.Critical:
		return AlertCritical
	case score >= t.High:
		return AlertHigh
	case score >= t.Warning:
		return AlertMedium
	default:
		return AlertLow
	}
}

// WeightTolerance is the allowed deviation of the layer weight sum from 1.0.
const WeightTolerance = 1e-6

// LayerWeights are the per-layer contributions to the overall score.
type LayerWeights struct {
	Preprocessing float64 `json:"preprocessing" yaml:"preprocessing"`
	ModelLevel    float64 `json:"model_level" yaml:"model_level"`
	Interactive   float64 `json:"interactive" yaml:"interactive"`
	Evaluation    float64 `json:"evaluation" yaml:"evaluation"`
}

// For returns the weight of layer l.
func (w LayerWeights) For(l Layer) float64 {
	switch l {
	case LayerPreprocessing:
		return w.Preprocessing
	case LayerModelLevel:
		return w.ModelLevel
	case LayerInteractive:
		return w.Interactive
	case LayerEvaluation:
		return w.Evaluation
	}
	return 0
}

// Validate requires non-negative weights summing to 1.0.
func (w LayerWeights) Validate() error {
	sum := 0.0
	for _, l := range Layers {
		v := w.For(l)
		if math.IsNaN(v) || v < 0 {
			return biaserr.Configuration("weights", "weight for %s must be non-negative, got %v", l, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > WeightTolerance {
		return biaserr.Configuration("weights", "must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// AnalysisResult is the engine's decision for one subject. It is treated as
// immutable once returned; use Clone before handing it to code that may mutate it.
type AnalysisResult struct {
	SubjectID        string       `json:"session_id"`
	Timestamp        time.Time    `json:"timestamp"`
	OverallBiasScore float64      `json:"overall_bias_score"`
	LayerResults     LayerResults `json:"layer_results"`
	Demographics     Demographics `json:"demographics"`
	Recommendations  []string     `json:"recommendations"`
	AlertLevel       AlertLevel   `json:"alert_level"`
	Confidence       float64      `json:"confidence"`
}

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Recommendations = slices.Clone(r.Recommendations)
	c.Demographics.CulturalBackground = slices.Clone(r.Demographics.CulturalBackground)

	lr := &c.LayerResults
	lr.Preprocessing.LayerScore = cloneScore(r.LayerResults.Preprocessing.LayerScore)
	lr.Preprocessing.Linguistic.BiasedTerms = slices.Clone(r.LayerResults.Preprocessing.Linguistic.BiasedTerms)
	if s := r.LayerResults.Preprocessing.Sentiment; s != nil {
		sc := *s
		lr.Preprocessing.Sentiment = &sc
	}
	lr.ModelLevel.LayerScore = cloneScore(r.LayerResults.ModelLevel.LayerScore)
	lr.ModelLevel.Fairness = cloneMap(r.LayerResults.ModelLevel.Fairness)
	lr.Interactive.LayerScore = cloneScore(r.LayerResults.Interactive.LayerScore)
	lr.Interactive.Counterfactuals = slices.Clone(r.LayerResults.Interactive.Counterfactuals)
	lr.Interactive.FeatureImportance = cloneMap(r.LayerResults.Interactive.FeatureImportance)
	if w := r.LayerResults.Interactive.WhatIf; w != nil {
		lr.Interactive.WhatIf = make([]WhatIfScenario, len(w))
		for i, sc := range w {
			sc.Changes = maps.Clone(sc.Changes)
			lr.Interactive.WhatIf[i] = sc
		}
	}
	lr.Evaluation.LayerScore = cloneScore(r.LayerResults.Evaluation.LayerScore)
	lr.Evaluation.Metrics = cloneMap(r.LayerResults.Evaluation.Metrics)
	return &c
}

func cloneScore(s LayerScore) LayerScore {
	s.Recommendations = slices.Clone(s.Recommendations)
	if s.DataQuality != nil {
		dq := *s.DataQuality
		s.DataQuality = &dq
	}
	return s
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/models"
)

func layers(p, m, i, e float64) models.LayerResults {
	return models.LayerResults{
		Preprocessing: models.PreprocessingResult{LayerScore: models.LayerScore{BiasScore: p}},
		ModelLevel:    models.ModelLevelResult{LayerScore: models.LayerScore{BiasScore: m}},
		Interactive:   models.InteractiveResult{LayerScore: models.LayerScore{BiasScore: i}},
		Evaluation:    models.EvaluationResult{LayerScore: models.LayerScore{BiasScore: e}},
	}
}

func TestOverallScore(t *testing.T) {
	w := config.DefaultEngine().Weights
	assert.InDelta(t, 0.45, OverallScore(layers(0.2, 0.3, 0.25, 0.9), w), 1e-9)
	assert.Equal(t, 0.0, OverallScore(layers(0, 0, 0, 0), w))
	assert.InDelta(t, 1.0, OverallScore(layers(1, 1, 1, 1), w), 1e-9)
	assert.Equal(t, 0.0, OverallScore(layers(math.NaN(), -1, -2, -3), w))
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 1.0, Confidence([]float64{0.4, 0.4, 0.4, 0.4}), 1e-9)
	assert.InDelta(t, 0.0, Confidence([]float64{0, 1, 0, 1}), 1e-9)
	assert.Equal(t, 0.0, Confidence(nil))

	// Spreading the same mean lowers confidence.
	tight := Confidence([]float64{0.4, 0.45, 0.35, 0.4})
	wide := Confidence([]float64{0.1, 0.7, 0.2, 0.6})
	assert.Greater(t, tight, wide)
}

func TestRecommendationsSkipLayersAtOrBelowWarning(t *testing.T) {
	lr := layers(0.31, 0.3, 0.9, 0.2)
	lr.Preprocessing.Recommendations = []string{"a", "b"}
	lr.ModelLevel.Recommendations = []string{"skipped"}
	lr.Interactive.Recommendations = []string{"b", "c"}
	lr.Evaluation.Recommendations = []string{"also skipped"}

	assert.Equal(t, []string{"a", "b", "c"}, Recommendations(lr, 0.3))
	assert.Empty(t, Recommendations(layers(0, 0, 0, 0), 0.3))
}

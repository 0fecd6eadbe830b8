package engine

import (
	"math"

	"github.com/pario-ai/fairlens/pkg/models"
)

// maxStdDev is the largest population standard deviation of values in [0,1];
// it maps to zero confidence.
const maxStdDev = 0.5

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// layerScores returns the clamped score of every layer in aggregation order.
func layerScores(lr models.LayerResults) []float64 {
	all := lr.All()
	out := make([]float64, len(all))
	for i, r := range all {
		out[i] = clamp01(r.Score().BiasScore)
	}
	return out
}

// OverallScore is the weighted sum of clamped layer scores, clamped to [0,1].
func OverallScore(lr models.LayerResults, w models.LayerWeights) float64 {
	var sum float64
	for _, r := range lr.All() {
		sum += clamp01(r.Score().BiasScore) * w.For(r.Layer())
	}
	return clamp01(sum)
}

// Confidence is 1 minus the population standard deviation of the scores
// scaled by its maximum, so agreeing layers give confidence 1.
func Confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))
	return clamp01(1 - math.Sqrt(variance)/maxStdDev)
}

// Recommendations merges the recommendations of every layer scoring above
// warning, in layer order, dropping duplicates.
func Recommendations(lr models.LayerResults, warning float64) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range lr.All() {
		s := r.Score()
		if clamp01(s.BiasScore) <= warning {
			continue
		}
		for _, rec := range s.Recommendations {
			if _, dup := seen[rec]; dup {
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

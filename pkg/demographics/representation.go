package demographics

import (
	"math"
	"sort"

	"github.com/pario-ai/fairlens/pkg/models"
)

// DefaultTolerance is the absolute proportion gap beyond which a group is
// reported as under- or over-represented.
const DefaultTolerance = 0.1

// representedTypes are the dimensions covered by representation statistics.
var representedTypes = []string{TypeAge, TypeGender, TypeEthnicity}

// Baseline maps a group type to the expected proportion of each value.
// Dimensions missing from the baseline are compared against a uniform
// distribution over the observed values.
type Baseline map[string]map[string]float64

// RepresentationStats summarizes how a population is spread across groups.
type RepresentationStats struct {
	Total            int                           `json:"total"`
	Distribution     map[string]map[string]int     `json:"distribution"`
	Proportions      map[string]map[string]float64 `json:"proportions"`
	DiversityIndex   map[string]float64            `json:"diversity_index"`
	Underrepresented []models.Group                `json:"underrepresented_groups,omitempty"`
	Overrepresented  []models.Group                `json:"overrepresented_groups,omitempty"`
	BiasScore        float64                       `json:"bias_score"`
}

// Representation computes per-dimension counts, proportions, Simpson
// diversity, and deviations from baseline. BiasScore is the mean total
// variation distance between observed and expected proportions, in [0,1].
// A non-positive tolerance uses DefaultTolerance.
func Representation(population []models.Demographics, baseline Baseline, tolerance float64) RepresentationStats {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	st := RepresentationStats{
		Total:          len(population),
		Distribution:   make(map[string]map[string]int, len(representedTypes)),
		Proportions:    make(map[string]map[string]float64, len(representedTypes)),
		DiversityIndex: make(map[string]float64, len(representedTypes)),
	}
	if len(population) == 0 {
		return st
	}

	var distanceSum float64
	for _, typ := range representedTypes {
		counts := make(map[string]int)
		for _, d := range population {
			counts[NormalizeTagValue(Value(d, typ))]++
		}
		st.Distribution[typ] = counts
		st.DiversityIndex[typ] = simpson(counts, len(population))

		observed := make(map[string]float64, len(counts))
		for v, n := range counts {
			observed[v] = float64(n) / float64(len(population))
		}
		st.Proportions[typ] = observed

		expected := expectedProportions(baseline[typ], counts)
		var distance float64
		for _, v := range unionKeys(observed, expected) {
			gap := observed[v] - expected[v]
			distance += math.Abs(gap)
			switch {
			case gap < -tolerance:
				st.Underrepresented = append(st.Underrepresented, models.Group{Type: typ, Value: v})
			case gap > tolerance:
				st.Overrepresented = append(st.Overrepresented, models.Group{Type: typ, Value: v})
			}
		}
		distanceSum += distance / 2
	}
	st.BiasScore = clamp01(distanceSum / float64(len(representedTypes)))
	return st
}

// simpson returns Simpson's diversity index 1 - Σ n(n-1) / N(N-1).
func simpson(counts map[string]int, total int) float64 {
	if total < 2 {
		return 0
	}
	var sum float64
	for _, n := range counts {
		sum += float64(n * (n - 1))
	}
	return 1 - sum/float64(total*(total-1))
}

func expectedProportions(base map[string]float64, observed map[string]int) map[string]float64 {
	out := make(map[string]float64)
	if len(base) > 0 {
		var total float64
		for _, p := range base {
			total += p
		}
		if total > 0 {
			for v, p := range base {
				out[NormalizeTagValue(v)] = p / total
			}
			return out
		}
	}
	for v := range observed {
		out[v] = 1 / float64(len(observed))
	}
	return out
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

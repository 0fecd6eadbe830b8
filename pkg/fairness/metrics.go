// Package fairness computes group-fairness spreads from per-group confusion
// counts. Every metric is a max-minus-min spread across groups: 0 is perfect
// parity, larger is more disparity. Results are cheap to compute and are
// never cached.
package fairness

import (
	"fmt"
	"math"
	"sort"

	"github.com/pario-ai/fairlens/pkg/biaserr"
)

// MinGroups is the minimum number of groups a comparison needs.
const MinGroups = 2

// Counts are the confusion-matrix counts for one group.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Total returns the number of observations.
func (c Counts) Total() int { return c.TP + c.FP + c.TN + c.FN }

// GroupRates are the per-group rates the spreads are computed from.
type GroupRates struct {
	PositiveRate float64 `json:"positive_rate"`
	TPR          float64 `json:"true_positive_rate"`
	FPR          float64 `json:"false_positive_rate"`
	Precision    float64 `json:"precision"`
	Accuracy     float64 `json:"accuracy"`
}

// Metrics are the fairness spreads across groups.
type Metrics struct {
	DemographicParity      float64               `json:"demographic_parity"`
	EqualizedOdds          float64               `json:"equalized_odds"`
	EqualOpportunity       float64               `json:"equal_opportunity"`
	Calibration            float64               `json:"calibration"`
	IndividualFairness     float64               `json:"individual_fairness"`
	CounterfactualFairness float64               `json:"counterfactual_fairness"`
	Groups                 map[string]GroupRates `json:"groups,omitempty"`
}

// Max returns the largest of the spreads.
func (m Metrics) Max() float64 {
	return math.Max(
		math.Max(math.Max(m.DemographicParity, m.EqualizedOdds), math.Max(m.EqualOpportunity, m.Calibration)),
		math.Max(m.IndividualFairness, m.CounterfactualFairness),
	)
}

// AsMap flattens the spreads for transport in layer results.
func (m Metrics) AsMap() map[string]float64 {
	return map[string]float64{
		"demographic_parity":      m.DemographicParity,
		"equalized_odds":          m.EqualizedOdds,
		"equal_opportunity":       m.EqualOpportunity,
		"calibration":             m.Calibration,
		"individual_fairness":     m.IndividualFairness,
		"counterfactual_fairness": m.CounterfactualFairness,
	}
}

// Rates computes the per-group rates. Zero denominators yield 0.
func Rates(c Counts) GroupRates {
	return GroupRates{
		PositiveRate: ratio(c.TP+c.FP, c.Total()),
		TPR:          ratio(c.TP, c.TP+c.FN),
		FPR:          ratio(c.FP, c.FP+c.TN),
		Precision:    ratio(c.TP, c.TP+c.FP),
		Accuracy:     ratio(c.TP+c.TN, c.Total()),
	}
}

// Calculate computes the fairness spreads across groups. It fails with
// *biaserr.InsufficientDataError for fewer than two groups and with
// *biaserr.ValidationError for negative counts. IndividualFairness is the
// accuracy spread; CounterfactualFairness is left at zero, see
// WithCounterfactuals.
func Calculate(groups map[string]Counts) (Metrics, error) {
	if len(groups) < MinGroups {
		return Metrics{}, &biaserr.InsufficientDataError{What: "fairness metrics groups", Need: MinGroups, Got: len(groups)}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	rates := make(map[string]GroupRates, len(groups))
	var pos, tpr, fpr, prec, acc spread
	for _, name := range names {
		c := groups[name]
		if c.TP < 0 || c.FP < 0 || c.TN < 0 || c.FN < 0 {
			return Metrics{}, biaserr.Validation(fmt.Sprintf("negative count in group %q", name), "groups."+name)
		}
		r := Rates(c)
		rates[name] = r
		pos.add(r.PositiveRate)
		tpr.add(r.TPR)
		fpr.add(r.FPR)
		prec.add(r.Precision)
		acc.add(r.Accuracy)
	}

	return Metrics{
		DemographicParity:  pos.width(),
		EqualizedOdds:      math.Max(tpr.width(), fpr.width()),
		EqualOpportunity:   tpr.width(),
		Calibration:        prec.width(),
		IndividualFairness: acc.width(),
		Groups:             rates,
	}, nil
}

// CounterfactualPair is a score for a subject and for a demographic variant of it.
type CounterfactualPair struct {
	Original float64 `json:"original"`
	Variant  float64 `json:"variant"`
}

// WithCounterfactuals returns m with CounterfactualFairness set to the mean
// absolute score change across pairs, clamped to [0,1].
func (m Metrics) WithCounterfactuals(pairs []CounterfactualPair) Metrics {
	if len(pairs) == 0 {
		return m
	}
	var sum float64
	for _, p := range pairs {
		sum += math.Abs(p.Variant - p.Original)
	}
	m.CounterfactualFairness = math.Min(1, sum/float64(len(pairs)))
	return m
}

type spread struct {
	min, max float64
	n        int
}

func (s *spread) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
}

func (s spread) width() float64 { return s.max - s.min }

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

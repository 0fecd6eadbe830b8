// Package local implements analyzer.Service in-process with lightweight term
// and ratio heuristics, so fairlens can run without the external analysis
// service. Scores are indicative only.
package local

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/fairness"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Recommendation thresholds.
const (
	highLayerScore  = 0.3
	lowDataQuality  = 0.7
	maxReportAdvice = 5

	strongNegativeTone = -0.5
)

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBaseline sets the population baseline representation is measured
// against. Without one, observed values are compared to a uniform split.
func WithBaseline(b demographics.Baseline, tolerance float64) Option {
	return func(s *Service) {
		s.baseline = b
		s.tolerance = tolerance
	}
}

// WithHistory sets where dashboard data is read from.
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithClock replaces time.Now for dashboard time ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the in-process analyzer.
type Service struct {
	logger    *zap.Logger
	baseline  demographics.Baseline
	tolerance float64
	history   History
	now       func() time.Time

	mu     sync.RWMutex
	policy config.Engine
}

var _ analyzer.Service = (*Service)(nil)

// New creates a local Service using the default scoring policy.
func New(opts ...Option) *Service {
	s := &Service{
		logger:    zap.NewNop(),
		tolerance: demographics.DefaultTolerance,
		policy:    config.DefaultEngine(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzePreprocessing combines linguistic bias, representation bias and data
// completeness as 0.4, 0.4 and 0.2.
func (s *Service) AnalyzePreprocessing(ctx context.Context, req *analyzer.PreprocessingRequest) (*models.PreprocessingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ling := linguisticBias(req.Content)
	rep := demographics.Representation([]models.Demographics{req.Demographics}, s.baseline, s.tolerance)
	quality := preprocessingQuality(req)

	res := &models.PreprocessingResult{
		Linguistic:     ling,
		Representation: rep.BiasScore,
	}
	if req.Content != "" {
		tone := sentiment(req.Content)
		res.Sentiment = &tone
	}
	res.BiasScore = clamp01(ling.Overall*0.4 + rep.BiasScore*0.4 + (1-quality.Completeness)*0.2)
	res.DataQuality = &quality

	if ling.Gender > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Balance gendered language and avoid gender stereotypes")
	}
	if ling.Age > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Reduce references to age unless clinically relevant")
	}
	for _, t := range ling.BiasedTerms {
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("Replace %q with %s", t.Term, t.Alternative))
	}
	if rep.BiasScore > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Broaden demographic representation in training scenarios")
	}
	if res.Sentiment != nil && res.Sentiment.Polarity <= strongNegativeTone {
		res.Recommendations = append(res.Recommendations, "Session language is strongly negative; check tone toward the participant")
	}
	if quality.Completeness < lowDataQuality {
		res.Recommendations = append(res.Recommendations, "Provide more session content for reliable analysis")
	}
	return res, nil
}

func preprocessingQuality(req *analyzer.PreprocessingRequest) models.DataQuality {
	present := 0
	checks := []bool{
		req.Content != "",
		len(tokenize(req.Content)) >= 20,
		req.Demographics.Age != "" && req.Demographics.Gender != "" && req.Demographics.Ethnicity != "",
		req.Scenario.ID != "" || req.Scenario.Type != "",
	}
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return models.DataQuality{Completeness: float64(present) / float64(len(checks))}
}

// groupCounts builds confusion counts per group from predictions that have a
// ground-truth label. It also returns how many predictions were labeled.
func groupCounts(preds []analyzer.Prediction, truth []models.ExpectedOutcome) (map[string]fairness.Counts, int) {
	expected := make(map[string]bool, len(truth))
	for _, o := range truth {
		expected[o.ResponseID] = o.Expected
	}
	groups := map[string]fairness.Counts{}
	labeled := 0
	for _, p := range preds {
		want, ok := expected[p.ResponseID]
		if !ok || p.ResponseID == "" {
			continue
		}
		labeled++
		c := groups[p.Group]
		switch {
		case p.Predicted && want:
			c.TP++
		case p.Predicted && !want:
			c.FP++
		case !p.Predicted && !want:
			c.TN++
		default:
			c.FN++
		}
		groups[p.Group] = c
	}
	return groups, labeled
}

// AnalyzeModelLevel scores the largest fairness spread across response groups.
func (s *Service) AnalyzeModelLevel(ctx context.Context, req *analyzer.ModelLevelRequest) (*models.ModelLevelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	groups, labeled := groupCounts(req.Predictions, req.GroundTruth)
	res := &models.ModelLevelResult{}
	quality := models.DataQuality{}
	if len(req.Predictions) > 0 {
		quality.Completeness = float64(labeled) / float64(len(req.Predictions))
	}
	res.DataQuality = &quality

	var total, correct int
	for _, c := range groups {
		total += c.Total()
		correct += c.TP + c.TN
	}
	if total > 0 {
		res.Accuracy = float64(correct) / float64(total)
	}

	m, err := fairness.Calculate(groups)
	if err != nil {
		s.logger.Debug("model-level fairness skipped", zap.String("subject_id", req.SubjectID), zap.Error(err))
		res.Recommendations = []string{"Collect labeled responses across at least two demographic groups"}
		return res, nil
	}
	res.Fairness = m.AsMap()
	res.BiasScore = clamp01(m.Max())

	if m.DemographicParity > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Positive response rates differ across groups; review decision criteria")
	}
	if m.EqualizedOdds > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Error rates differ across groups; recalibrate per-group thresholds")
	}
	if m.Calibration > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Precision differs across groups; audit confidence calibration")
	}
	return res, nil
}

// AnalyzeInteractive rescores the text for every counterfactual variant. The
// bias score is the mean absolute score change.
func (s *Service) AnalyzeInteractive(ctx context.Context, req *analyzer.InteractiveRequest) (*models.InteractiveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := linguisticBias(req.Content).Overall
	res := &models.InteractiveResult{FeatureImportance: map[string]float64{}}
	pairs := make([]fairness.CounterfactualPair, 0, len(req.Variants))

	for _, v := range req.Variants {
		score := linguisticBias(substitute(req.Content, v.Attribute, v.OriginalValue, v.VariantValue)).Overall
		pairs = append(pairs, fairness.CounterfactualPair{Original: base, Variant: score})
		delta := score - base
		res.Counterfactuals = append(res.Counterfactuals, models.Counterfactual{
			Attribute:     v.Attribute,
			OriginalValue: v.OriginalValue,
			VariantValue:  v.VariantValue,
			ScoreDelta:    delta,
		})
		if abs := absf(delta); abs > res.FeatureImportance[v.Attribute] {
			res.FeatureImportance[v.Attribute] = abs
		}
	}
	res.BiasScore = fairness.Metrics{}.WithCounterfactuals(pairs).CounterfactualFairness
	if req.Content != "" {
		res.WhatIf = whatIfScenarios(req.Content, base, req.Variants)
	}
	res.DataQuality = &models.DataQuality{Completeness: boolScore(len(req.Variants) > 0 && req.Content != "")}

	attrs := make([]string, 0, len(res.FeatureImportance))
	for a, imp := range res.FeatureImportance {
		if imp > highLayerScore/2 {
			attrs = append(attrs, a)
		}
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("Responses change with participant %s; review for differential treatment", a))
	}
	for _, w := range res.WhatIf {
		if w.Name == scenarioNeutralLanguage && w.ScoreDelta < -highLayerScore/2 {
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("Gender-neutral wording lowers the text bias score by %.2f; prefer neutral phrasing", -w.ScoreDelta))
		}
	}
	return res, nil
}

const (
	scenarioNeutralLanguage = "neutral_language"
	scenarioAllAttributes   = "all_attributes"
)

// whatIfScenarios rescores text with gendered words neutralized and, when the
// variants cover more than one attribute, with the first variant of every
// attribute applied together.
func whatIfScenarios(text string, base float64, variants []analyzer.Variant) []models.WhatIfScenario {
	neutral := linguisticBias(substitute(text, "gender", "", "neutral")).Overall
	out := []models.WhatIfScenario{{
		Name:       scenarioNeutralLanguage,
		Changes:    map[string]string{"language": "gender-neutral"},
		BiasScore:  neutral,
		ScoreDelta: neutral - base,
	}}

	changes := map[string]string{}
	combined := text
	for _, v := range variants {
		if _, seen := changes[v.Attribute]; seen {
			continue
		}
		changes[v.Attribute] = v.VariantValue
		combined = substitute(combined, v.Attribute, v.OriginalValue, v.VariantValue)
	}
	if len(changes) > 1 {
		score := linguisticBias(combined).Overall
		out = append(out, models.WhatIfScenario{
			Name:       scenarioAllAttributes,
			Changes:    changes,
			BiasScore:  score,
			ScoreDelta: score - base,
		})
	}
	return out
}

// AnalyzeEvaluation computes the requested fairness metrics across response
// groups plus the spread of mean response confidence.
func (s *Service) AnalyzeEvaluation(ctx context.Context, req *analyzer.EvaluationRequest) (*models.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &models.EvaluationResult{Metrics: map[string]float64{}}

	gap := confidenceGap(req.Responses)
	res.Metrics["confidence_gap"] = gap

	scores := []float64{gap}
	groups, _ := groupCounts(req.Responses, req.GroundTruth)
	if m, err := fairness.Calculate(groups); err == nil {
		all := m.AsMap()
		for _, name := range req.Metrics {
			if v, ok := all[name]; ok {
				res.Metrics[name] = v
				scores = append(scores, v)
			}
		}
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	res.BiasScore = clamp01(sum / float64(len(scores)))
	res.DataQuality = &models.DataQuality{
		Completeness: float64(len(scores)) / float64(len(req.Metrics)+1),
		Consistency:  boolScore(len(req.Transcripts) > 0),
	}

	if gap > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Model confidence differs across groups; review responses for the less confident group")
	}
	if res.BiasScore > highLayerScore {
		res.Recommendations = append(res.Recommendations, "Evaluation metrics show group disparity; expand evaluation set")
	}
	return res, nil
}

func confidenceGap(preds []analyzer.Prediction) float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, p := range preds {
		sums[p.Group] += p.Confidence
		counts[p.Group]++
	}
	if len(counts) < fairness.MinGroups {
		return 0
	}
	lo, hi := 1.0, 0.0
	for g, n := range counts {
		mean := sums[g] / float64(n)
		lo = min(lo, mean)
		hi = max(hi, mean)
	}
	return clamp01(hi - lo)
}

// UpdateConfiguration records the new scoring policy used by Explain.
func (s *Service) UpdateConfiguration(_ context.Context, update analyzer.ConfigurationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Thresholds != nil {
		s.policy.Thresholds = *update.Thresholds
	}
	if update.Weights != nil {
		s.policy.Weights = *update.Weights
	}
	s.logger.Debug("local analyzer policy updated")
	return nil
}

func (s *Service) currentPolicy() config.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

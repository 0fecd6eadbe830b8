package local

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/models"
)

// History supplies past analyses for dashboards. The audit log implements it.
type History interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

const (
	defaultDashboardRange = 24 * time.Hour
	dashboardQueryLimit   = 10000
	recentAlertLimit      = 10
)

// GenerateReport aggregates analyses into summary, findings and metrics.
func (s *Service) GenerateReport(ctx context.Context, req *analyzer.ReportRequest) (*models.ReportContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(req.Analyses)
	if n == 0 {
		return &models.ReportContent{Summary: "No sessions analyzed in the selected period"}, nil
	}
	pol := s.currentPolicy()

	var sumScore, sumConf float64
	layerSums := make(map[models.Layer]float64, len(models.Layers))
	levels := map[models.AlertLevel]int{}
	advice := map[string]int{}
	for _, a := range req.Analyses {
		sumScore += a.OverallBiasScore
		sumConf += a.Confidence
		levels[a.AlertLevel]++
		for _, lr := range a.LayerResults.All() {
			layerSums[lr.Layer()] += lr.Score().BiasScore
		}
		for _, r := range a.Recommendations {
			advice[r]++
		}
	}
	avg := sumScore / float64(n)
	severe := levels[models.AlertHigh] + levels[models.AlertCritical]

	out := &models.ReportContent{
		Summary: fmt.Sprintf("%d sessions analyzed; average bias score %.2f; %d high or critical alerts", n, avg, severe),
		Metrics: map[string]float64{
			"average_bias_score": avg,
			"average_confidence": sumConf / float64(n),
			"high_alert_ratio":   float64(severe) / float64(n),
		},
	}
	for _, l := range models.Layers {
		la := layerSums[l] / float64(n)
		out.Metrics["layer_"+string(l)] = la
		if la > pol.Thresholds.Warning {
			out.Findings = append(out.Findings, fmt.Sprintf("%s layer average %.2f exceeds warning threshold %.2f", l, la, pol.Thresholds.Warning))
		}
	}
	for _, lvl := range []models.AlertLevel{models.AlertCritical, models.AlertHigh, models.AlertMedium, models.AlertLow} {
		if c := levels[lvl]; c > 0 {
			out.Findings = append(out.Findings, fmt.Sprintf("%d sessions at %s alert level", c, lvl))
		}
	}

	if req.Options.IncludeRecommendations {
		recs := make([]string, 0, len(advice))
		for r := range advice {
			recs = append(recs, r)
		}
		sort.Slice(recs, func(i, j int) bool {
			if advice[recs[i]] != advice[recs[j]] {
				return advice[recs[i]] > advice[recs[j]]
			}
			return recs[i] < recs[j]
		})
		if len(recs) > maxReportAdvice {
			recs = recs[:maxReportAdvice]
		}
		out.Recommendations = recs
	}
	return out, nil
}

// Explain attributes a result's score to its layers and, when available, to
// the counterfactual sensitivity of the group's attribute.
func (s *Service) Explain(ctx context.Context, req *analyzer.ExplainRequest) (*models.Explanation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || req.Result == nil {
		return nil, biaserr.Validation("analysis result is required", "analysis_result")
	}
	r := req.Result
	pol := s.currentPolicy()

	factors := make([]models.ExplanationFactor, 0, len(models.Layers)+1)
	for _, lr := range r.LayerResults.All() {
		score := clamp01(lr.Score().BiasScore)
		w := pol.Weights.For(lr.Layer())
		factors = append(factors, models.ExplanationFactor{
			Name:         string(lr.Layer()),
			Contribution: score * w,
			Description:  fmt.Sprintf("%s layer scored %.2f with weight %.2f", lr.Layer(), score, w),
		})
	}
	if imp, ok := r.LayerResults.Interactive.FeatureImportance[req.Group.Type]; ok {
		factors = append(factors, models.ExplanationFactor{
			Name:         "counterfactual_" + req.Group.Type,
			Contribution: imp,
			Description:  fmt.Sprintf("changing %s moves the score by up to %.2f", req.Group.Type, imp),
		})
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Contribution > factors[j].Contribution })

	ex := &models.Explanation{
		SubjectID: r.SubjectID,
		Group:     req.Group,
		Summary: fmt.Sprintf("Session scored %.2f (%s alert) for %s; largest factor: %s",
			r.OverallBiasScore, r.AlertLevel, req.Group, factors[0].Name),
		Factors:         factors,
		Recommendations: slices.Clone(r.Recommendations),
	}
	own := demographics.Value(r.Demographics, req.Group.Type)
	if own != "" && demographics.NormalizeTagValue(own) == demographics.NormalizeTagValue(req.Group.Value) && r.AlertLevel.Rank() >= models.AlertHigh.Rank() {
		ex.Recommendations = append(ex.Recommendations,
			fmt.Sprintf("Review this session with a reviewer familiar with the %s group", req.Group))
	}
	return ex, nil
}

// Dashboard aggregates the audit history over the requested time range.
// Without a history source it returns an empty dashboard.
func (s *Service) Dashboard(ctx context.Context, opts models.DashboardOptions) (*models.DashboardData, error) {
	span, err := ParseTimeRange(opts.TimeRange)
	if err != nil {
		return nil, err
	}
	data := &models.DashboardData{
		AlertCounts:  map[models.AlertLevel]int{},
		Demographics: map[string]map[string]int{},
	}
	if s.history == nil {
		return data, nil
	}

	entries, err := s.history.Query(ctx, models.AuditQueryOpts{
		Since: s.now().Add(-span),
		Limit: dashboardQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard history: %w", err)
	}

	bucket := 24 * time.Hour
	if span <= 48*time.Hour {
		bucket = time.Hour
	}
	trends := map[time.Time]*models.TrendPoint{}
	var sum float64
	for _, e := range entries {
		data.TotalSessions++
		sum += e.OverallBiasScore
		data.AlertCounts[e.AlertLevel]++
		if e.AlertLevel.Rank() >= models.AlertHigh.Rank() && len(data.RecentAlerts) < recentAlertLimit {
			data.RecentAlerts = append(data.RecentAlerts, models.AlertSummary{
				SubjectID:  e.SubjectHash,
				AlertLevel: e.AlertLevel,
				BiasScore:  e.OverallBiasScore,
				Timestamp:  e.CreatedAt,
			})
		}

		ts := e.CreatedAt.UTC().Truncate(bucket)
		tp, ok := trends[ts]
		if !ok {
			tp = &models.TrendPoint{Timestamp: ts}
			trends[ts] = tp
		}
		tp.AverageBiasScore = (tp.AverageBiasScore*float64(tp.Sessions) + e.OverallBiasScore) / float64(tp.Sessions+1)
		tp.Sessions++

		addTagBreakdown(data.Demographics, e.ParticipantTag)
	}
	if data.TotalSessions > 0 {
		data.AverageBiasScore = sum / float64(data.TotalSessions)
	}
	for _, tp := range trends {
		data.Trends = append(data.Trends, *tp)
	}
	sort.Slice(data.Trends, func(i, j int) bool { return data.Trends[i].Timestamp.Before(data.Trends[j].Timestamp) })
	return data, nil
}

func addTagBreakdown(out map[string]map[string]int, tag string) {
	rest, ok := strings.CutPrefix(tag, demographics.ParticipantTagPrefix)
	if !ok {
		return
	}
	parts := strings.Split(rest, ":")
	dims := []string{demographics.TypeAge, demographics.TypeGender, demographics.TypeEthnicity}
	for i, dim := range dims {
		if i >= len(parts) {
			return
		}
		if out[dim] == nil {
			out[dim] = map[string]int{}
		}
		out[dim][parts[i]]++
	}
}

// ParseTimeRange accepts a Go duration ("12h") or a day count ("7d"). The
// empty string means 24 hours.
func ParseTimeRange(s string) (time.Duration, error) {
	if s == "" {
		return defaultDashboardRange, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, biaserr.Validation(fmt.Sprintf("invalid time range %q", s), "time_range")
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, biaserr.Validation(fmt.Sprintf("invalid time range %q", s), "time_range")
	}
	return d, nil
}

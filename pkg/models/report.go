package models

import "time"

// TimeRange is a closed interval of analysis timestamps.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReportOptions tune report generation.
type ReportOptions struct {
	Format                 string `json:"format,omitempty"`
	IncludeRecommendations bool   `json:"include_recommendations,omitempty"`
}

// ReportContent is the aggregation produced by the external reporting capability.
type ReportContent struct {
	Summary         string             `json:"summary"`
	Findings        []string           `json:"findings,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// Report is a point-in-time snapshot across many analyses.
type Report struct {
	ID               string             `json:"report_id"`
	GeneratedAt      time.Time          `json:"generated_at"`
	TimeRange        TimeRange          `json:"time_range"`
	SubjectIDs       []string           `json:"session_ids"`
	AlertCounts      map[AlertLevel]int `json:"alert_counts"`
	AverageBiasScore float64            `json:"average_bias_score"`
	Content          ReportContent      `json:"content"`
}

// DashboardOptions select the dashboard view.
type DashboardOptions struct {
	ViewerID  string `json:"viewer_id" form:"viewer_id"`
	TimeRange string `json:"time_range" form:"time_range"`
}

// AlertSummary is a single recent alert shown on the dashboard.
type AlertSummary struct {
	SubjectID  string     `json:"session_id"`
	AlertLevel AlertLevel `json:"alert_level"`
	BiasScore  float64    `json:"bias_score"`
	Timestamp  time.Time  `json:"timestamp"`
}

// TrendPoint is one bucket of the dashboard bias trend.
type TrendPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	AverageBiasScore float64   `json:"average_bias_score"`
	Sessions         int       `json:"session_count"`
}

// DashboardData is the aggregated dashboard view.
type DashboardData struct {
	TotalSessions    int                       `json:"total_sessions"`
	AverageBiasScore float64                   `json:"average_bias_score"`
	AlertCounts      map[AlertLevel]int        `json:"alert_counts"`
	RecentAlerts     []AlertSummary            `json:"recent_alerts,omitempty"`
	Trends           []TrendPoint              `json:"trends,omitempty"`
	Demographics     map[string]map[string]int `json:"demographic_breakdown,omitempty"`
}

// ExplanationFactor is one contribution to a bias decision.
type ExplanationFactor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description,omitempty"`
}

// Explanation describes why a result was flagged for a demographic group.
type Explanation struct {
	SubjectID       string              `json:"session_id"`
	Group           Group               `json:"group"`
	Summary         string              `json:"summary"`
	Factors         []ExplanationFactor `json:"factors,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
}

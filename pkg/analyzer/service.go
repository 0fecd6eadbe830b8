// Package analyzer defines the boundary to the bias analysis service: the four
// per-layer operations the engine fans out to, plus report generation,
// configuration forwarding, dashboard aggregation and explanations.
package analyzer

import (
	"context"
	"time"

	"github.com/pario-ai/fairlens/pkg/models"
)

// Service performs the linguistic and statistical work behind each layer.
// Implementations must be safe for concurrent use; every call may fail.
type Service interface {
	AnalyzePreprocessing(ctx context.Context, req *PreprocessingRequest) (*models.PreprocessingResult, error)
	AnalyzeModelLevel(ctx context.Context, req *ModelLevelRequest) (*models.ModelLevelResult, error)
	AnalyzeInteractive(ctx context.Context, req *InteractiveRequest) (*models.InteractiveResult, error)
	AnalyzeEvaluation(ctx context.Context, req *EvaluationRequest) (*models.EvaluationResult, error)

	GenerateReport(ctx context.Context, req *ReportRequest) (*models.ReportContent, error)
	UpdateConfiguration(ctx context.Context, update ConfigurationUpdate) error
	Dashboard(ctx context.Context, opts models.DashboardOptions) (*models.DashboardData, error)
	Explain(ctx context.Context, req *ExplainRequest) (*models.Explanation, error)
}

// PreprocessingRequest carries sanitized session text for linguistic and
// representation analysis.
type PreprocessingRequest struct {
	SubjectID    string              `json:"session_id"`
	Content      string              `json:"content"`
	Demographics models.Demographics `json:"participant_demographics"`
	Scenario     models.Scenario     `json:"training_scenario"`
}

// Prediction is one model decision as seen by the model-level layer.
type Prediction struct {
	ResponseID string  `json:"response_id"`
	Predicted  bool    `json:"predicted"`
	Confidence float64 `json:"confidence"`
	Group      string  `json:"group,omitempty"`
}

// ModelLevelRequest carries predictions and ground truth for statistical fairness.
type ModelLevelRequest struct {
	SubjectID    string                   `json:"session_id"`
	Predictions  []Prediction             `json:"predictions"`
	GroundTruth  []models.ExpectedOutcome `json:"ground_truth"`
	Demographics models.Demographics      `json:"participant_demographics"`
}

// Variant is a counterfactual copy of the participant with one attribute changed.
type Variant struct {
	Attribute     string              `json:"attribute"`
	OriginalValue string              `json:"original_value"`
	VariantValue  string              `json:"variant_value"`
	Demographics  models.Demographics `json:"participant_demographics"`
}

// InteractiveRequest carries the session and its counterfactual variants.
type InteractiveRequest struct {
	SubjectID    string              `json:"session_id"`
	Content      string              `json:"content"`
	Demographics models.Demographics `json:"participant_demographics"`
	Variants     []Variant           `json:"counterfactual_variants"`
}

// EvaluationRequest carries transcripts, the groups to compare and the
// metric names to compute.
type EvaluationRequest struct {
	SubjectID   string                   `json:"session_id"`
	Transcripts []models.Transcript      `json:"transcripts"`
	Responses   []Prediction             `json:"predictions,omitempty"`
	GroundTruth []models.ExpectedOutcome `json:"ground_truth,omitempty"`
	Groups      []models.Group           `json:"demographic_groups"`
	Metrics     []string                 `json:"metrics"`
}

// ReportRequest asks the service to aggregate many analyses into one report.
type ReportRequest struct {
	Analyses  []*models.AnalysisResult `json:"analyses"`
	TimeRange models.TimeRange         `json:"time_range"`
	Options   models.ReportOptions     `json:"options"`
}

// ConfigurationUpdate forwards changed scoring policy to the service. Nil
// fields are unchanged.
type ConfigurationUpdate struct {
	Thresholds *models.Thresholds   `json:"thresholds,omitempty"`
	Weights    *models.LayerWeights `json:"layer_weights,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// ExplainRequest asks why result was flagged for group.
type ExplainRequest struct {
	Result *models.AnalysisResult `json:"analysis_result"`
	Group  models.Group           `json:"demographic_group"`
}

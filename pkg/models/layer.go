package models

// Layer names one of the four independent analysis techniques.
type Layer string

const (
	LayerPreprocessing Layer = "preprocessing"
	LayerModelLevel    Layer = "model_level"
	LayerInteractive   Layer = "interactive"
	LayerEvaluation    Layer = "evaluation"
)

// Layers lists every layer in aggregation order.
var Layers = []Layer{LayerPreprocessing, LayerModelLevel, LayerInteractive, LayerEvaluation}

// DataQuality reports how complete the data a layer worked with was.
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency,omitempty"`
}

// LayerScore is the part of a layer result the engine aggregates.
type LayerScore struct {
	BiasScore       float64      `json:"bias_score"`
	Recommendations []string     `json:"recommendations"`
	DataQuality     *DataQuality `json:"data_quality_metrics,omitempty"`
}

// LayerResult is implemented only by the four result types in this package.
type LayerResult interface {
	Layer() Layer
	Score() LayerScore
	layerResult()
}

// BiasedTerm is a flagged term with a suggested neutral alternative.
type BiasedTerm struct {
	Term        string `json:"term"`
	BiasType    string `json:"bias_type"`
	Severity    string `json:"severity"`
	Context     string `json:"context,omitempty"`
	Alternative string `json:"suggested_alternative,omitempty"`
}

// LinguisticBias holds per-dimension linguistic bias scores.
type LinguisticBias struct {
	Overall     float64      `json:"overall_bias_score"`
	Gender      float64      `json:"gender_bias_score"`
	Racial      float64      `json:"racial_bias_score"`
	Age         float64      `json:"age_bias_score"`
	Cultural    float64      `json:"cultural_bias_score"`
	BiasedTerms []BiasedTerm `json:"biased_terms,omitempty"`
}

// Sentiment is the tone of session text. Polarity runs from -1 (negative) to
// 1 (positive); Subjectivity is the share of opinion words.
type Sentiment struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
}

// PreprocessingResult is produced by the linguistic pre-processing layer.
type PreprocessingResult struct {
	LayerScore
	Linguistic     LinguisticBias `json:"linguistic_bias"`
	Representation float64        `json:"representation_bias_score"`
	Sentiment      *Sentiment     `json:"sentiment_analysis,omitempty"`
}

// ModelLevelResult is produced by the statistical model-level layer.
type ModelLevelResult struct {
	LayerScore
	Fairness map[string]float64 `json:"fairness_metrics,omitempty"`
	Accuracy float64            `json:"accuracy"`
}

// Counterfactual compares the score of a session with a demographic variant of it.
type Counterfactual struct {
	Attribute     string  `json:"attribute"`
	OriginalValue string  `json:"original_value"`
	VariantValue  string  `json:"variant_value"`
	ScoreDelta    float64 `json:"score_delta"`
}

// WhatIfScenario rescores a session under several changes at once.
type WhatIfScenario struct {
	Name       string            `json:"name"`
	Changes    map[string]string `json:"changes"`
	BiasScore  float64           `json:"bias_score"`
	ScoreDelta float64           `json:"score_delta"`
}

// InteractiveResult is produced by the counterfactual interactive layer.
type InteractiveResult struct {
	LayerScore
	Counterfactuals   []Counterfactual   `json:"counterfactual_analysis,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	WhatIf            []WhatIfScenario   `json:"what_if_scenarios,omitempty"`
}

// EvaluationResult is produced by the evaluation-based layer.
type EvaluationResult struct {
	LayerScore
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func (PreprocessingResult) Layer() Layer { return LayerPreprocessing }
func (ModelLevelResult) Layer() Layer    { return LayerModelLevel }
func (InteractiveResult) Layer() Layer   { return LayerInteractive }
func (EvaluationResult) Layer() Layer    { return LayerEvaluation }

func (r PreprocessingResult) Score() LayerScore { return r.LayerScore }
func (r ModelLevelResult) Score() LayerScore    { return r.LayerScore }
func (r InteractiveResult) Score() LayerScore   { return r.LayerScore }
func (r EvaluationResult) Score() LayerScore    { return r.LayerScore }

func (PreprocessingResult) layerResult() {}
func (ModelLevelResult) layerResult()    {}
func (InteractiveResult) layerResult()   {}
func (EvaluationResult) layerResult()    {}

// LayerResults holds exactly one result per layer.
type LayerResults struct {
	Preprocessing PreprocessingResult `json:"preprocessing"`
	ModelLevel    ModelLevelResult    `json:"model_level"`
	Interactive   InteractiveResult   `json:"interactive"`
	Evaluation    EvaluationResult    `json:"evaluation"`
}

// All returns the results in the order of Layers.
func (r LayerResults) All() []LayerResult {
	return []LayerResult{r.Preprocessing, r.ModelLevel, r.Interactive, r.Evaluation}
}

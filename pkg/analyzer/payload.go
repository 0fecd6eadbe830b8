package analyzer

import (
	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/models"
)

// DefaultMetrics are the evaluation metric names requested for every subject.
var DefaultMetrics = []string{
	"demographic_parity",
	"equalized_odds",
	"equal_opportunity",
	"calibration",
}

// alternatives are the values substituted when building counterfactual variants.
var alternatives = map[string][]string{
	demographics.TypeGender:    {"female", "male", "non-binary"},
	demographics.TypeAge:       {"18-25", "26-35", "36-50", "51-65", "65+"},
	demographics.TypeEthnicity: {"white", "black", "hispanic", "asian", "other"},
}

var variantOrder = []string{demographics.TypeGender, demographics.TypeAge, demographics.TypeEthnicity}

// Payloads holds the four layer requests built from one subject.
type Payloads struct {
	Preprocessing *PreprocessingRequest
	ModelLevel    *ModelLevelRequest
	Interactive   *InteractiveRequest
	Evaluation    *EvaluationRequest
}

// BuildPayloads derives every layer request from s. Free text is sanitized
// with opts before it leaves the process.
func BuildPayloads(s *models.Subject, opts demographics.SanitizeOptions) Payloads {
	text := demographics.Sanitize(demographics.ExtractText(s), opts)
	preds := Predictions(s)
	return Payloads{
		Preprocessing: &PreprocessingRequest{
			SubjectID:    s.ID,
			Content:      text,
			Demographics: s.Demographics,
			Scenario:     s.Scenario,
		},
		ModelLevel: &ModelLevelRequest{
			SubjectID:    s.ID,
			Predictions:  preds,
			GroundTruth:  s.ExpectedOutcomes,
			Demographics: s.Demographics,
		},
		Interactive: &InteractiveRequest{
			SubjectID:    s.ID,
			Content:      text,
			Demographics: s.Demographics,
			Variants:     Variants(s.Demographics),
		},
		Evaluation: &EvaluationRequest{
			SubjectID:   s.ID,
			Transcripts: sanitizeTranscripts(s.Transcripts, opts),
			Responses:   preds,
			GroundTruth: s.ExpectedOutcomes,
			Groups:      demographics.Groups(s.Demographics),
			Metrics:     DefaultMetrics,
		},
	}
}

// Predictions converts model responses into predictions. Responses without a
// group label are attributed to the participant's gender.
func Predictions(s *models.Subject) []Prediction {
	out := make([]Prediction, 0, len(s.Responses))
	for _, r := range s.Responses {
		g := r.Group
		if g == "" {
			g = s.Demographics.Gender
		}
		out = append(out, Prediction{
			ResponseID: r.ID,
			Predicted:  r.Predicted,
			Confidence: r.Confidence,
			Group:      g,
		})
	}
	return out
}

// Variants returns one counterfactual per alternative value of gender, age
// and ethnicity, skipping the participant's own value.
func Variants(d models.Demographics) []Variant {
	var out []Variant
	for _, attr := range variantOrder {
		orig := demographics.Value(d, attr)
		for _, alt := range alternatives[attr] {
			if demographics.NormalizeTagValue(alt) == demographics.NormalizeTagValue(orig) {
				continue
			}
			v := d
			v.CulturalBackground = append([]string(nil), d.CulturalBackground...)
			switch attr {
			case demographics.TypeGender:
				v.Gender = alt
			case demographics.TypeAge:
				v.Age = alt
			case demographics.TypeEthnicity:
				v.Ethnicity = alt
			}
			out = append(out, Variant{Attribute: attr, OriginalValue: orig, VariantValue: alt, Demographics: v})
		}
	}
	return out
}

func sanitizeTranscripts(ts []models.Transcript, opts demographics.SanitizeOptions) []models.Transcript {
	if len(ts) == 0 {
		return nil
	}
	out := make([]models.Transcript, len(ts))
	for i, t := range ts {
		t.Content = demographics.Sanitize(t.Content, opts)
		out[i] = t
	}
	return out
}

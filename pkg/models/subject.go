package models

import "time"

// Subject is one session submitted for bias analysis. ID is a UUID and roots
// every cache key derived from the subject.
type Subject struct {
	ID               string            `json:"session_id" validate:"required,uuid"`
	Timestamp        time.Time         `json:"timestamp" validate:"required"`
	Demographics     Demographics      `json:"participant_demographics"`
	Scenario         Scenario          `json:"training_scenario"`
	Content          Content           `json:"content"`
	Responses        []ModelResponse   `json:"ai_responses" validate:"max=500,dive"`
	ExpectedOutcomes []ExpectedOutcome `json:"expected_outcomes" validate:"max=500,dive"`
	Transcripts      []Transcript      `json:"transcripts" validate:"max=500,dive"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Demographics describes the participant of a session. The first four fields
// are required on a Subject; used as a partial filter, any field may be empty.
type Demographics struct {
	Age                 string   `json:"age" yaml:"age" validate:"required,notblank"`
	Gender              string   `json:"gender" yaml:"gender" validate:"required,notblank"`
	Ethnicity           string   `json:"ethnicity" yaml:"ethnicity" validate:"required,notblank"`
	PrimaryLanguage     string   `json:"primary_language" yaml:"primary_language" validate:"required,notblank"`
	SocioeconomicStatus string   `json:"socioeconomic_status,omitempty" yaml:"socioeconomic_status"`
	Education           string   `json:"education,omitempty" yaml:"education"`
	Region              string   `json:"region,omitempty" yaml:"region"`
	CulturalBackground  []string `json:"cultural_background,omitempty" yaml:"cultural_background"`
}

// Scenario identifies the training scenario a session was run against.
type Scenario struct {
	ID         string `json:"scenario_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Content is the free-text body of a session.
type Content struct {
	PatientPresentation      string   `json:"patient_presentation,omitempty" validate:"max=32768"`
	TherapeuticInterventions []string `json:"therapeutic_interventions,omitempty" validate:"max=200,dive,max=32768"`
	PatientResponses         []string `json:"patient_responses,omitempty" validate:"max=200,dive,max=32768"`
	SessionNotes             string   `json:"session_notes,omitempty" validate:"max=32768"`
}

// ModelResponse is one response produced by the model under evaluation.
// Group optionally labels the demographic cohort the response was produced for.
type ModelResponse struct {
	ID         string  `json:"id,omitempty"`
	Type       string  `json:"type,omitempty"`
	Content    string  `json:"content" validate:"max=32768"`
	Reasoning  string  `json:"reasoning,omitempty" validate:"max=32768"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Predicted  bool    `json:"predicted"`
	Group      string  `json:"group,omitempty"`
}

// ExpectedOutcome is the ground truth for the response with the same ID.
type ExpectedOutcome struct {
	ResponseID string `json:"response_id" validate:"required,notblank"`
	Expected   bool   `json:"expected"`
}

// Transcript is one utterance of the session transcript.
type Transcript struct {
	Speaker   string    `json:"speaker,omitempty"`
	Content   string    `json:"content" validate:"max=32768"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Group is a (type, value) demographic pair such as (age, "26-35").
type Group struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (g Group) String() string { return g.Type + "=" + g.Value }

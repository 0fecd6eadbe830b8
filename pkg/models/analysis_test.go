package models

import (
	"errors"
	"testing"

	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdsLevel(t *testing.T) {
	th := Thresholds{Warning: 0.3, High: 0.6, Critical: 0.8}
	tests := []struct {
		score float64
		want  AlertLevel
	}{
		{0, AlertLow},
		{0.299, AlertLow},
		{0.3, AlertMedium},
		{0.4, AlertMedium},
		{0.6, AlertHigh},
		{0.79, AlertHigh},
		{0.8, AlertCritical},
		{1, AlertCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Level(tt.score), "score %v", tt.score)
	}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, Thresholds{Warning: 0.3, High: 0.6, Critical: 0.8}.Validate())

	for _, th := range []Thresholds{
		{Warning: 0.6, High: 0.3, Critical: 0.8},
		{Warning: 0.3, High: 0.3, Critical: 0.8},
		{Warning: 0.3, High: 0.6, Critical: 1.2},
		{Warning: -0.1, High: 0.6, Critical: 0.8},
	} {
		err := th.Validate()
		var ce *biaserr.ConfigurationError
		assert.True(t, errors.As(err, &ce), "thresholds %+v", th)
	}
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, LayerWeights{Preprocessing: 0.2, ModelLevel: 0.3, Interactive: 0.2, Evaluation: 0.3}.Validate())

	err := LayerWeights{Preprocessing: 0.2, ModelLevel: 0.3, Interactive: 0.2, Evaluation: 0.2}.Validate()
	var ce *biaserr.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "weights", ce.Setting)

	err = LayerWeights{Preprocessing: -0.2, ModelLevel: 0.7, Interactive: 0.2, Evaluation: 0.3}.Validate()
	assert.Error(t, err)
}

func TestParseAlertLevel(t *testing.T) {
	lvl, err := ParseAlertLevel("high")
	require.NoError(t, err)
	assert.Equal(t, AlertHigh, lvl)

	_, err = ParseAlertLevel("severe")
	var ve *biaserr.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAnalysisResultCloneIsDeep(t *testing.T) {
	orig := &AnalysisResult{
		SubjectID:       "s1",
		Recommendations: []string{"a"},
		LayerResults: LayerResults{
			ModelLevel: ModelLevelResult{
				LayerScore: LayerScore{Recommendations: []string{"m"}, DataQuality: &DataQuality{Completeness: 0.5}},
				Fairness:   map[string]float64{"demographic_parity": 0.1},
			},
		},
	}
	c := orig.Clone()
	c.Recommendations[0] = "changed"
	c.LayerResults.ModelLevel.Recommendations[0] = "changed"
	c.LayerResults.ModelLevel.DataQuality.Completeness = 1
	c.LayerResults.ModelLevel.Fairness["demographic_parity"] = 0.9

	assert.Equal(t, "a", orig.Recommendations[0])
	assert.Equal(t, "m", orig.LayerResults.ModelLevel.Recommendations[0])
	assert.Equal(t, 0.5, orig.LayerResults.ModelLevel.DataQuality.Completeness)
	assert.Equal(t, 0.1, orig.LayerResults.ModelLevel.Fairness["demographic_parity"])
	assert.Nil(t, (*AnalysisResult)(nil).Clone())
}

func TestAnalysisResultCloneCopiesSentimentAndWhatIf(t *testing.T) {
	orig := &AnalysisResult{}
	orig.LayerResults.Preprocessing.Sentiment = &Sentiment{Polarity: -0.5}
	orig.LayerResults.Interactive.WhatIf = []WhatIfScenario{{Name: "n", Changes: map[string]string{"gender": "male"}}}

	c := orig.Clone()
	c.LayerResults.Preprocessing.Sentiment.Polarity = 1
	c.LayerResults.Interactive.WhatIf[0].Changes["gender"] = "female"
	c.LayerResults.Interactive.WhatIf[0].Name = "m"

	assert.Equal(t, -0.5, orig.LayerResults.Preprocessing.Sentiment.Polarity)
	assert.Equal(t, "male", orig.LayerResults.Interactive.WhatIf[0].Changes["gender"])
	assert.Equal(t, "n", orig.LayerResults.Interactive.WhatIf[0].Name)
}

func TestLayerResultsAllOrder(t *testing.T) {
	var lr LayerResults
	all := lr.All()
	require.Len(t, all, len(Layers))
	for i, l := range Layers {
		assert.Equal(t, l, all[i].Layer())
	}
}

package biaserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamAnalysisErrorWraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("analyze: %w", &UpstreamAnalysisError{Layer: "model_level", SubjectID: "s1", Err: cause})

	var up *UpstreamAnalysisError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, "model_level", up.Layer)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "model_level analysis failed for subject s1")
}

func TestNonRetryable(t *testing.T) {
	assert.False(t, IsRetryable(Validation("bad", "id")))
	assert.False(t, IsRetryable(Configuration("weights", "sum is %.2f", 0.9)))
	assert.False(t, IsRetryable(nil))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "validation failed on id, timestamp: required", Validation("required", "id", "timestamp").Error())
	assert.Equal(t, "validation failed: empty", Validation("empty").Error())
	assert.Equal(t, "invalid configuration thresholds: not ascending", Configuration("thresholds", "not ascending").Error())
	e := &InsufficientDataError{What: "fairness metrics", Need: 2, Got: 1}
	assert.Equal(t, "insufficient data for fairness metrics: need at least 2, got 1", e.Error())
}

package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pario-ai/fairlens/pkg/models"
)

func sampleAlert() Alert {
	return Alert{
		ID:              "a-1",
		SubjectID:       "s-1",
		Level:           models.AlertHigh,
		Score:           0.65,
		Confidence:      0.8,
		Recommendations: []string{"review wording"},
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromResultCopiesRecommendations(t *testing.T) {
	r := &models.AnalysisResult{
		SubjectID:        "s-1",
		OverallBiasScore: 0.7,
		AlertLevel:       models.AlertHigh,
		Confidence:       0.9,
		Recommendations:  []string{"a", "b"},
	}
	a := FromResult("id", r)
	r.Recommendations[0] = "changed"

	assert.Equal(t, "s-1", a.SubjectID)
	assert.Equal(t, models.AlertHigh, a.Level)
	assert.Equal(t, 0.7, a.Score)
	assert.Equal(t, []string{"a", "b"}, a.Recommendations)
}

func TestLogDispatcher(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewLogDispatcher(zap.New(core))

	require.NoError(t, d.Dispatch(context.Background(), sampleAlert()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "bias alert", entry.Message)
	assert.Equal(t, "high", entry.ContextMap()["alert_level"])
	assert.Equal(t, "s-1", entry.ContextMap()["subject_id"])
}

func TestWebhookDispatcher(t *testing.T) {
	got := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		got <- a
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second)
	require.NoError(t, d.Dispatch(context.Background(), sampleAlert()))
	assert.Equal(t, sampleAlert(), <-got)
}

func TestWebhookDispatcherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookDispatcher(srv.URL, time.Second).Dispatch(context.Background(), sampleAlert())
	var we *WebhookError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, http.StatusInternalServerError, we.StatusCode)
}

type recordingDispatcher struct {
	calls int
	err   error
}

func (r *recordingDispatcher) Dispatch(context.Context, Alert) error {
	r.calls++
	return r.err
}

func TestMultiAttemptsAll(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingDispatcher{err: boom}
	second := &recordingDispatcher{}

	err := Multi{first, second}.Dispatch(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	assert.NoError(t, Multi{}.Dispatch(context.Background(), sampleAlert()))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/analyzer/local"
	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/engine"
	"github.com/pario-ai/fairlens/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const subjectID = "0b6a1c2e-4f1d-4c39-9f2a-7d1e5b9c3a10"

// failingService breaks the model-level layer of the local analyzer.
type failingService struct {
	*local.Service
}

func (failingService) AnalyzeModelLevel(context.Context, *analyzer.ModelLevelRequest) (*models.ModelLevelResult, error) {
	return nil, errors.New("model service unavailable")
}

func newTestServer(t *testing.T, svc analyzer.Service, open bool) (*Server, *cache.Manager) {
	t.Helper()
	caches, err := cache.NewManager(cache.DefaultConfig())
	require.NoError(t, err)
	eng, err := engine.New(config.DefaultEngine(), svc, caches)
	require.NoError(t, err)
	if open {
		require.NoError(t, eng.Open(context.Background()))
	}
	t.Cleanup(func() { _ = eng.Close() })
	return New(":0", eng, caches), caches
}

func subjectJSON(id string) map[string]any {
	return map[string]any{
		"session_id": id,
		"timestamp":  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		"participant_demographics": map[string]any{
			"age": "26-35", "gender": "female", "ethnicity": "asian", "primary_language": "en",
		},
		"content": map[string]any{
			"patient_presentation": "She says the chairman dismissed her concerns.",
		},
	}
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyzeAndGet(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON(subjectID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, subjectID, res.SubjectID)
	assert.NotEmpty(t, res.AlertLevel)
	assert.GreaterOrEqual(t, res.OverallBiasScore, 0.0)
	assert.LessOrEqual(t, res.OverallBiasScore, 1.0)

	w = do(t, s, http.MethodGet, "/v1/analyses/"+subjectID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cached models.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cached))
	assert.Equal(t, res.OverallBiasScore, cached.OverallBiasScore)

	w = do(t, s, http.MethodGet, "/v1/analyses/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}

func TestAnalyzeValidationError(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON("not-a-uuid"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	d := decodeError(t, w)
	assert.Equal(t, "validation_error", d.Type)
	assert.Contains(t, d.Fields, "Subject.ID")
	assert.False(t, d.Retryable)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeNotInitialized(t *testing.T) {
	s, _ := newTestServer(t, local.New(), false)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON(subjectID))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_initialized", decodeError(t, w).Type)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	s, _ := newTestServer(t, failingService{local.New()}, true)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON(subjectID))
	require.Equal(t, http.StatusBadGateway, w.Code)
	d := decodeError(t, w)
	assert.Equal(t, "upstream_error", d.Type)
	assert.True(t, d.Retryable)
	assert.Contains(t, d.Message, "model_level")
}

func TestThresholds(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPut, "/v1/thresholds", map[string]float64{"warning": 0.7})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "configuration_error", decodeError(t, w).Type)

	w = do(t, s, http.MethodPut, "/v1/thresholds", map[string]float64{"critical": 0.9})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"warning":0.3,"high":0.6,"critical":0.9}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/v1/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pol PolicyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pol))
	assert.Equal(t, 0.9, pol.Thresholds.Critical)
	assert.Equal(t, 0.3, pol.Weights.ModelLevel)
}

func TestUpdateWeights(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPut, "/v1/weights", models.LayerWeights{Preprocessing: 1, ModelLevel: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, s, http.MethodPut, "/v1/weights", models.LayerWeights{Preprocessing: 0.25, ModelLevel: 0.25, Interactive: 0.25, Evaluation: 0.25})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFairness(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/fairness", map[string]any{
		"groups": map[string]any{"a": map[string]int{"tp": 5, "fn": 5}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_data", decodeError(t, w).Type)

	w = do(t, s, http.MethodPost, "/v1/fairness", map[string]any{
		"groups": map[string]any{
			"a": map[string]int{"tp": 8, "fp": 0, "tn": 2, "fn": 0},
			"b": map[string]int{"tp": 2, "fp": 0, "tn": 8, "fn": 0},
		},
		"counterfactuals": []map[string]float64{{"original": 0.2, "variant": 0.6}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var m struct {
		DemographicParity      float64 `json:"demographic_parity"`
		CounterfactualFairness float64 `json:"counterfactual_fairness"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.InDelta(t, 0.6, m.DemographicParity, 1e-9)
	assert.InDelta(t, 0.4, m.CounterfactualFairness, 1e-9)
}

func TestReports(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/reports", map[string]any{
		"sessions": []any{subjectJSON(subjectID)},
		"options":  map[string]any{"include_recommendations": true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rep models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, []string{subjectID}, rep.SubjectIDs)
	assert.NotEmpty(t, rep.Content.Summary)

	w = do(t, s, http.MethodGet, "/v1/reports/"+rep.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/v1/reports/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/v1/reports", map[string]any{"sessions": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodGet, "/v1/dashboard?viewer_id=v1&time_range=7d", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/v1/dashboard?viewer_id=v1&time_range=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplainBySubjectID(t *testing.T) {
	s, _ := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON(subjectID))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/v1/explain", map[string]any{
		"session_id":        subjectID,
		"demographic_group": map[string]string{"type": "gender", "value": "female"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ex models.Explanation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ex))
	assert.Equal(t, subjectID, ex.SubjectID)
	assert.NotEmpty(t, ex.Factors)

	w = do(t, s, http.MethodPost, "/v1/explain", map[string]any{
		"demographic_group": map[string]string{"type": "gender", "value": "female"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	s, caches := newTestServer(t, local.New(), true)

	w := do(t, s, http.MethodPost, "/v1/analyze", subjectJSON(subjectID))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, cache.AnalysisCacheName)

	w = do(t, s, http.MethodDelete, "/v1/cache/demographics", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodDelete, "/v1/cache/demographics?gender=male", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":0}`, w.Body.String())

	w = do(t, s, http.MethodDelete, "/v1/cache/demographics?gender=female", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())
	_, ok := caches.Analysis.GetAnalysis(subjectID)
	assert.False(t, ok)
}

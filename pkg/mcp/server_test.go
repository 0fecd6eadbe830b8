package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/engine"
	"github.com/pario-ai/fairlens/pkg/models"
)

type fakeAnalyzer struct {
	result     *models.AnalysisResult
	err        error
	thresholds models.Thresholds
	got        *models.Subject
}

func (f *fakeAnalyzer) AnalyzeSession(_ context.Context, s *models.Subject) (*models.AnalysisResult, error) {
	f.got = s
	return f.result, f.err
}

func (f *fakeAnalyzer) UpdateThresholds(_ context.Context, u engine.ThresholdsUpdate) (models.Thresholds, error) {
	if u.Warning != nil {
		f.thresholds.Warning = *u.Warning
	}
	if u.High != nil {
		f.thresholds.High = *u.High
	}
	if u.Critical != nil {
		f.thresholds.Critical = *u.Critical
	}
	return f.thresholds, f.thresholds.Validate()
}

func (f *fakeAnalyzer) Thresholds() models.Thresholds { return f.thresholds }

func (f *fakeAnalyzer) Weights() models.LayerWeights {
	return models.LayerWeights{Preprocessing: 0.2, ModelLevel: 0.3, Interactive: 0.2, Evaluation: 0.3}
}

type fakeCache map[string]cache.Stats

func (f fakeCache) Stats() map[string]cache.Stats { return f }

type fakeAuditor struct {
	entries []models.AuditEntry
	opts    models.AuditQueryOpts
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	f.opts = opts
	return f.entries, nil
}

func newAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{thresholds: models.Thresholds{Warning: 0.3, High: 0.6, Critical: 0.8}}
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	require.NoError(t, err)
	line = append(line, '\n')

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(line), &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "raw: %s", out.String())
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args any) ToolCallResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: raw})
	require.NoError(t, err)

	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "fairlens", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestToolsList(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	require.NoError(t, json.Unmarshal(data, &result))

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.Contains(t, toolHandlers, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"fairlens_analyze", "fairlens_fairness", "fairlens_cache_stats",
		"fairlens_audit_search", "fairlens_thresholds",
	}, names)
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	require.NoError(t, srv.Run(context.Background(), in, &out))
	assert.Empty(t, out.String())
}

func TestUnknownMethodAndParseError(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "resources/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader("{not json\n"), &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestUnknownTool(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	res := callTool(t, srv, "fairlens_nope", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "unknown tool")
}

func TestAnalyzeTool(t *testing.T) {
	a := newAnalyzer()
	a.result = &models.AnalysisResult{
		SubjectID:        "s-1",
		OverallBiasScore: 0.45,
		AlertLevel:       models.AlertMedium,
		Confidence:       0.4327,
		Recommendations:  []string{"Review counterfactual outcomes"},
	}
	srv := New(a, nil, nil, "test", nil)

	res := callTool(t, srv, "fairlens_analyze", map[string]any{
		"session": map[string]any{"session_id": "s-1"},
	})
	require.False(t, res.IsError, res.Content[0].Text)
	assert.Equal(t, "s-1", a.got.ID)
	text := res.Content[0].Text
	assert.Contains(t, text, "0.4500")
	assert.Contains(t, text, "medium")
	assert.Contains(t, text, "preprocessing")
	assert.Contains(t, text, "Review counterfactual outcomes")

	res = callTool(t, srv, "fairlens_analyze", map[string]any{})
	assert.True(t, res.IsError)

	a.err = errors.New("boom")
	res = callTool(t, srv, "fairlens_analyze", map[string]any{"session": map[string]any{"session_id": "s-2"}})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "boom")
}

func TestFairnessTool(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	res := callTool(t, srv, "fairlens_fairness", map[string]any{
		"groups": map[string]any{
			"a": map[string]int{"tp": 8, "tn": 2},
			"b": map[string]int{"tp": 2, "tn": 8},
		},
	})
	require.False(t, res.IsError, res.Content[0].Text)
	assert.Contains(t, res.Content[0].Text, "demographic_parity")
	assert.Contains(t, res.Content[0].Text, "0.6000")

	res = callTool(t, srv, "fairlens_fairness", map[string]any{
		"groups": map[string]any{"a": map[string]int{"tp": 1}},
	})
	assert.True(t, res.IsError)
}

func TestCacheStatsTool(t *testing.T) {
	res := callTool(t, New(newAnalyzer(), nil, nil, "test", nil), "fairlens_cache_stats", nil)
	assert.False(t, res.IsError)
	assert.Equal(t, "Cache is not configured.", res.Content[0].Text)

	c := fakeCache{"analysis": {Entries: 3, Hits: 3, Misses: 1, HitRatio: 0.75}}
	res = callTool(t, New(newAnalyzer(), c, nil, "test", nil), "fairlens_cache_stats", nil)
	assert.Contains(t, res.Content[0].Text, "analysis")
	assert.Contains(t, res.Content[0].Text, "75.0%")
}

func TestAuditSearchTool(t *testing.T) {
	res := callTool(t, New(newAnalyzer(), nil, nil, "test", nil), "fairlens_audit_search", nil)
	assert.Equal(t, "Audit logging is not configured.", res.Content[0].Text)

	au := &fakeAuditor{entries: []models.AuditEntry{{
		SubjectHash:      "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		OverallBiasScore: 0.7,
		AlertLevel:       models.AlertHigh,
		CreatedAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}}
	srv := New(newAnalyzer(), nil, au, "test", nil)

	res = callTool(t, srv, "fairlens_audit_search", map[string]any{
		"alert_level": "high", "since": "2026-02-01", "min_score": 0.5,
	})
	require.False(t, res.IsError, res.Content[0].Text)
	assert.Equal(t, models.AlertHigh, au.opts.AlertLevel)
	assert.Equal(t, 50, au.opts.Limit)
	assert.InDelta(t, 0.5, au.opts.MinScore, 1e-9)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), au.opts.Since)
	assert.Contains(t, res.Content[0].Text, "2026-03-01 10:00:00")
	assert.Contains(t, res.Content[0].Text, "ba7816bf...20015ad")

	res = callTool(t, srv, "fairlens_audit_search", map[string]any{"since": "March"})
	assert.True(t, res.IsError)
	res = callTool(t, srv, "fairlens_audit_search", map[string]any{"alert_level": "severe"})
	assert.True(t, res.IsError)
}

func TestThresholdsTool(t *testing.T) {
	a := newAnalyzer()
	srv := New(a, nil, nil, "test", nil)

	res := callTool(t, srv, "fairlens_thresholds", nil)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "0.3000")
	assert.Contains(t, res.Content[0].Text, "model_level")

	res = callTool(t, srv, "fairlens_thresholds", map[string]any{"warning": 0.25})
	require.False(t, res.IsError, res.Content[0].Text)
	assert.InDelta(t, 0.25, a.thresholds.Warning, 1e-9)
	assert.Contains(t, res.Content[0].Text, "0.2500")

	res = callTool(t, srv, "fairlens_thresholds", map[string]any{"critical": 0.1})
	assert.True(t, res.IsError)
}

func TestInvalidRequest(t *testing.T) {
	srv := New(newAnalyzer(), nil, nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "1.0", ID: json.RawMessage(`4`), Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
	assert.JSONEq(t, `4`, string(resp.ID))

	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/cancelled"}` + "\n")
	require.NoError(t, srv.Run(context.Background(), in, &out))
	assert.Empty(t, out.String())
}

func TestToolPanicIsInternalError(t *testing.T) {
	toolHandlers["fairlens_broken"] = func(context.Context, *Server, json.RawMessage) ToolCallResult {
		panic("nil map")
	}
	t.Cleanup(func() { delete(toolHandlers, "fairlens_broken") })

	srv := New(newAnalyzer(), nil, nil, "test", nil)
	params, err := json.Marshal(ToolCallParams{Name: "fairlens_broken"})
	require.NoError(t, err)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`5`), Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "fairlens_broken")
}

func TestToolSchemasAreObjects(t *testing.T) {
	for _, tool := range allTools {
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req, tool.Name)
		}
	}

	data, err := json.Marshal(allTools[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"inputSchema":{"type":"object"`)
	assert.Contains(t, string(data), `"required":["session"]`)
}

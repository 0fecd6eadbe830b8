package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/models"
)

func testCLI(t *testing.T) *cli {
	t.Helper()
	cfg := config.Default()
	cfg.Analyzer.Mode = config.ModeLocal
	cfg.Audit.DBPath = filepath.Join(t.TempDir(), "audit.db")
	cfg.Audit.RetentionDays = 0
	return &cli{cfg: cfg, logger: zap.NewNop()}
}

func writeFile(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "warn", Format: config.FormatJSON}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	l, err = newLogger(config.LogConfig{Level: "warn", Format: config.FormatConsole}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}

func TestFairnessCommand(t *testing.T) {
	path := writeFile(t, map[string]any{
		"groups": map[string]any{
			"a": map[string]int{"tp": 8, "tn": 2},
			"b": map[string]int{"tp": 2, "tn": 8},
		},
		"counterfactuals": []map[string]float64{{"original": 0.1, "variant": 0.3}},
	})
	out := run(t, newFairnessCmd(testCLI(t)), path)

	var m struct {
		DemographicParity      float64 `json:"demographic_parity"`
		CounterfactualFairness float64 `json:"counterfactual_fairness"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.InDelta(t, 0.6, m.DemographicParity, 1e-9)
	assert.InDelta(t, 0.2, m.CounterfactualFairness, 1e-9)
}

func TestAnalyzeThenAuditSearch(t *testing.T) {
	c := testCLI(t)
	path := writeFile(t, map[string]any{
		"session_id": "0b6a1c2e-4f1d-4c39-9f2a-7d1e5b9c3a10",
		"timestamp":  "2026-03-01T10:00:00Z",
		"participant_demographics": map[string]any{
			"age": "26-35", "gender": "female", "ethnicity": "asian", "primary_language": "en",
		},
		"content": map[string]any{"patient_presentation": "She says the chairman dismissed her concerns."},
	})

	out := run(t, newAnalyzeCmd(c), path)
	var res models.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "0b6a1c2e-4f1d-4c39-9f2a-7d1e5b9c3a10", res.SubjectID)
	assert.NotEmpty(t, res.AlertLevel)

	out = run(t, newAuditCmd(c), "search", "--session", "0b6a1c2e-4f1d-4c39-9f2a-7d1e5b9c3a10")
	assert.Contains(t, out, string(res.AlertLevel))
	assert.NotContains(t, out, "No audit entries found.")

	out = run(t, newAuditCmd(c), "stats")
	assert.Contains(t, out, "AVG SCORE")
}

func TestAuditDisabled(t *testing.T) {
	c := testCLI(t)
	c.cfg.Audit.Enabled = false
	cmd := newAuditCmd(c)
	cmd.SetArgs([]string{"stats"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.ExecuteContext(context.Background()), "disabled")
}

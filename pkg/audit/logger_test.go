package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pario-ai/fairlens/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:        true,
		DBPath:         filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays:  90,
		HashSubjectIDs: true,
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg, WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		SubjectID:        "0b6a1c2e-4f1d-4c39-9f2a-7d1e5b9c3a10",
		Timestamp:        baseTime,
		OverallBiasScore: 0.65,
		Confidence:       0.8,
		AlertLevel:       models.AlertHigh,
		Demographics: models.Demographics{
			Age: "26-35", Gender: "Non Binary", Ethnicity: "asian", PrimaryLanguage: "en",
		},
		Recommendations: []string{"never stored"},
	}
}

func TestRecordAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	r := sampleResult()
	require.NoError(t, l.Record(ctx, r))

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, HashSubjectID(r.SubjectID), e.SubjectHash)
	assert.NotContains(t, e.SubjectHash, r.SubjectID)
	assert.Equal(t, 0.65, e.OverallBiasScore)
	assert.Equal(t, 0.8, e.Confidence)
	assert.Equal(t, models.AlertHigh, e.AlertLevel)
	assert.Equal(t, []string{"preprocessing", "model_level", "interactive", "evaluation"}, e.Layers)
	assert.Equal(t, "participant:26-35:non-binary:asian", e.ParticipantTag)
	assert.True(t, baseTime.Equal(e.CreatedAt))
}

func TestRecordWithoutHashing(t *testing.T) {
	cfg := tempCfg(t)
	cfg.HashSubjectIDs = false
	l := mustNew(t, cfg)
	ctx := context.Background()

	r := sampleResult()
	require.NoError(t, l.Record(ctx, r))

	entries, err := l.Query(ctx, models.AuditQueryOpts{SubjectHash: r.SubjectID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, r.SubjectID, l.SubjectKey(r.SubjectID))
}

func TestHashSubjectID(t *testing.T) {
	h := HashSubjectID("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
	assert.Equal(t, h, HashSubjectID("abc"))
}

func TestQueryFilters(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entries := []models.AuditEntry{
		{ID: "a1", SubjectHash: "s1", OverallBiasScore: 0.2, AlertLevel: models.AlertLow, CreatedAt: baseTime.Add(-48 * time.Hour)},
		{ID: "a2", SubjectHash: "s2", OverallBiasScore: 0.7, AlertLevel: models.AlertHigh, CreatedAt: baseTime.Add(-2 * time.Hour)},
		{ID: "a3", SubjectHash: "s1", OverallBiasScore: 0.9, AlertLevel: models.AlertCritical, CreatedAt: baseTime.Add(-time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, l.Log(ctx, e))
	}

	tests := []struct {
		name string
		opts models.AuditQueryOpts
		want []string
	}{
		{"all newest first", models.AuditQueryOpts{}, []string{"a3", "a2", "a1"}},
		{"by level", models.AuditQueryOpts{AlertLevel: models.AlertHigh}, []string{"a2"}},
		{"min score", models.AuditQueryOpts{MinScore: 0.5}, []string{"a3", "a2"}},
		{"since", models.AuditQueryOpts{Since: baseTime.Add(-3 * time.Hour)}, []string{"a3", "a2"}},
		{"subject", models.AuditQueryOpts{SubjectHash: "s1"}, []string{"a3", "a1"}},
		{"limit", models.AuditQueryOpts{Limit: 1}, []string{"a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.opts)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, e := range got {
				ids[i] = e.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	for i, score := range []float64{0.7, 0.9} {
		require.NoError(t, l.Log(ctx, models.AuditEntry{
			SubjectHash:      "s",
			OverallBiasScore: score,
			AlertLevel:       models.AlertHigh,
			CreatedAt:        baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, l.Log(ctx, models.AuditEntry{
		SubjectHash:      "s",
		OverallBiasScore: 0.1,
		AlertLevel:       models.AlertLow,
		CreatedAt:        baseTime.Add(-24 * time.Hour),
	}))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, models.AlertHigh, stats[0].AlertLevel)
	assert.Equal(t, "2026-03-10", stats[0].Day)
	assert.Equal(t, 2, stats[0].Count)
	assert.InDelta(t, 0.8, stats[0].AvgScore, 1e-9)

	assert.Equal(t, models.AlertLow, stats[1].AlertLevel)
	assert.Equal(t, "2026-03-09", stats[1].Day)
	assert.Equal(t, 1, stats[1].Count)
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 1
	l := mustNew(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, models.AuditEntry{ID: "old", SubjectHash: "s", AlertLevel: models.AlertLow, CreatedAt: baseTime.Add(-72 * time.Hour)}))
	require.NoError(t, l.Log(ctx, models.AuditEntry{ID: "new", SubjectHash: "s", AlertLevel: models.AlertLow, CreatedAt: baseTime.Add(-time.Hour)}))

	n, err := l.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func TestCleanupZeroRetentionKeepsEverything(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0
	l := mustNew(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, models.AuditEntry{SubjectHash: "s", AlertLevel: models.AlertLow, CreatedAt: baseTime.AddDate(-5, 0, 0)}))
	n, err := l.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	assert.NoError(t, l.Log(context.Background(), models.AuditEntry{}))
	assert.NoError(t, l.Record(context.Background(), sampleResult()))
}

func TestCloseIdempotent(t *testing.T) {
	l, err := New(tempCfg(t))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/fairness"
	"github.com/pario-ai/fairlens/pkg/models"
)

// formatAnalysis formats an analysis result as a short report.
func formatAnalysis(r *models.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session:     %s\n", r.SubjectID)
	fmt.Fprintf(&b, "Bias score:  %.4f\n", r.OverallBiasScore)
	fmt.Fprintf(&b, "Alert level: %s\n", r.AlertLevel)
	fmt.Fprintf(&b, "Confidence:  %.4f\n\n", r.Confidence)

	fmt.Fprintf(&b, "%-16s %10s\n", "Layer", "Score")
	b.WriteString(strings.Repeat("-", 27) + "\n")
	for _, lr := range r.LayerResults.All() {
		fmt.Fprintf(&b, "%-16s %10.4f\n", lr.Layer(), lr.Score().BiasScore)
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String()
}

// formatFairness formats fairness spreads and per-group rates.
func formatFairness(m fairness.Metrics) string {
	var b strings.Builder
	spreads := m.AsMap()
	names := make([]string, 0, len(spreads))
	for k := range spreads {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "%-24s %8.4f\n", k, spreads[k])
	}

	if len(m.Groups) == 0 {
		return b.String()
	}
	groups := make([]string, 0, len(m.Groups))
	for g := range m.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	b.WriteString("\n")
	fmt.Fprintf(&b, "%-16s %9s %9s %9s %9s %9s\n", "Group", "Positive", "TPR", "FPR", "Precision", "Accuracy")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, g := range groups {
		r := m.Groups[g]
		fmt.Fprintf(&b, "%-16s %9.4f %9.4f %9.4f %9.4f %9.4f\n", g, r.PositiveRate, r.TPR, r.FPR, r.Precision, r.Accuracy)
	}
	return b.String()
}

// formatCacheStats formats per-cache statistics as a text table.
func formatCacheStats(stats map[string]cache.Stats) string {
	if len(stats) == 0 {
		return "No caches configured."
	}
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s %8s %8s %9s %10s %12s\n", "Cache", "Entries", "Hits", "Misses", "Hit Rate", "Evictions", "Memory")
	b.WriteString(strings.Repeat("-", 73) + "\n")
	for _, n := range names {
		s := stats[n]
		fmt.Fprintf(&b, "%-12s %8d %8d %8d %8.1f%% %10d %12d\n",
			n, s.Entries, s.Hits, s.Misses, s.HitRatio*100, s.Evictions, s.MemoryBytes)
	}
	return b.String()
}

// formatAuditEntries formats audit log entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-18s %-9s %8s %10s %s\n",
		"Time", "Subject", "Level", "Score", "Confidence", "Tag")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, e := range entries {
		subject := e.SubjectHash
		if len(subject) > 18 {
			subject = subject[:8] + "..." + subject[len(subject)-7:]
		}
		fmt.Fprintf(&b, "%-20s %-18s %-9s %8.4f %10.4f %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			subject, e.AlertLevel, e.OverallBiasScore, e.Confidence, e.ParticipantTag)
	}
	return b.String()
}

// formatPolicy formats the alert thresholds and layer weights.
func formatPolicy(t models.Thresholds, w models.LayerWeights) string {
	var b strings.Builder
	b.WriteString("Thresholds:\n")
	fmt.Fprintf(&b, "  %-14s %.4f\n", "warning", t.Warning)
	fmt.Fprintf(&b, "  %-14s %.4f\n", "high", t.High)
	fmt.Fprintf(&b, "  %-14s %.4f\n", "critical", t.Critical)
	b.WriteString("Layer weights:\n")
	for _, l := range models.Layers {
		fmt.Fprintf(&b, "  %-14s %.4f\n", l, w.For(l))
	}
	return b.String()
}

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/fairlens/pkg/engine"
	"github.com/pario-ai/fairlens/pkg/fairness"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Tool argument structs.

type analyzeArgs struct {
	Session *models.Subject `json:"session"`
}

type fairnessArgs struct {
	Groups          map[string]fairness.Counts    `json:"groups"`
	Counterfactuals []fairness.CounterfactualPair `json:"counterfactuals"`
}

type auditSearchArgs struct {
	AlertLevel  string  `json:"alert_level"`
	MinScore    float64 `json:"min_score"`
	Since       string  `json:"since"`
	SubjectHash string  `json:"subject_hash"`
	Limit       int     `json:"limit"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"fairlens_analyze":      handleAnalyze,
	"fairlens_fairness":     handleFairness,
	"fairlens_cache_stats":  handleCacheStats,
	"fairlens_audit_search": handleAuditSearch,
	"fairlens_thresholds":   handleThresholds,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "fairlens_analyze",
		Description: "Run the four-layer bias analysis on a session and report the overall score, alert level and recommendations.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"session": {Type: "object", Description: "Session with session_id, demographics, content, and optionally model_responses and expected_outcomes"},
			},
			Required: []string{"session"},
		},
	},
	{
		Name:        "fairlens_fairness",
		Description: "Compute fairness spreads (demographic parity, equalized odds, equal opportunity, calibration) from per-group confusion counts.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"groups":          {Type: "object", Description: "Map of group name to {tp, fp, tn, fn}; at least two groups"},
				"counterfactuals": {Type: "array", Description: "Optional list of {original, variant} score pairs"},
			},
			Required: []string{"groups"},
		},
	},
	{
		Name:        "fairlens_cache_stats",
		Description: "Show entries, hit ratio and evictions for the analysis, dashboard and report caches.",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "fairlens_audit_search",
		Description: "Search the bias audit log by alert level, minimum score, date or subject hash.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"alert_level":  {Type: "string", Description: "Filter by alert level: low, medium, high or critical (optional)"},
				"min_score":    {Type: "number", Description: "Only entries with an overall score at or above this value (optional)"},
				"since":        {Type: "string", Description: "Start date in YYYY-MM-DD format (optional)"},
				"subject_hash": {Type: "string", Description: "Filter by subject hash (optional)"},
				"limit":        {Type: "integer", Description: "Maximum entries to return (default 50)"},
			},
		},
	},
	{
		Name:        "fairlens_thresholds",
		Description: "Show the alert thresholds and layer weights. Passing any threshold updates it first.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"warning":  {Type: "number", Description: "New warning threshold (optional)"},
				"high":     {Type: "number", Description: "New high threshold (optional)"},
				"critical": {Type: "number", Description: "New critical threshold (optional)"},
			},
		},
	},
}

func handleAnalyze(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args analyzeArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Session == nil {
		return errorResult("session is required")
	}
	res, err := s.analyzer.AnalyzeSession(ctx, args.Session)
	if err != nil {
		return errorResult("Error analyzing session: " + err.Error())
	}
	return textResult(formatAnalysis(res))
}

func handleFairness(_ context.Context, _ *Server, rawArgs json.RawMessage) ToolCallResult {
	var args fairnessArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	m, err := fairness.Calculate(args.Groups)
	if err != nil {
		return errorResult("Error computing fairness metrics: " + err.Error())
	}
	m = m.WithCounterfactuals(args.Counterfactuals)
	return textResult(formatFairness(m))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.cache.Stats()))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		MinScore:    args.MinScore,
		SubjectHash: args.SubjectHash,
		Limit:       50,
	}
	if args.Limit > 0 {
		opts.Limit = args.Limit
	}
	if args.AlertLevel != "" {
		lvl, err := models.ParseAlertLevel(args.AlertLevel)
		if err != nil {
			return errorResult(err.Error())
		}
		opts.AlertLevel = lvl
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleThresholds(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var u engine.ThresholdsUpdate
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &u); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if u.Warning != nil || u.High != nil || u.Critical != nil {
		if _, err := s.analyzer.UpdateThresholds(ctx, u); err != nil {
			return errorResult("Error updating thresholds: " + err.Error())
		}
	}
	return textResult(formatPolicy(s.analyzer.Thresholds(), s.analyzer.Weights()))
}

package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/models"
)

// GenerateBiasReport analyzes every subject, has the analysis service
// aggregate the results and stores the report under a new id.
func (e *Engine) GenerateBiasReport(ctx context.Context, subjects []*models.Subject, tr models.TimeRange, opts models.ReportOptions) (*models.Report, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, biaserr.Validation("at least one subject is required", "session_ids")
	}
	if !tr.Start.IsZero() && !tr.End.IsZero() && tr.End.Before(tr.Start) {
		return nil, biaserr.Validation("time range ends before it starts", "time_range")
	}

	ctx, span := tracer.Start(ctx, "engine.GenerateBiasReport",
		trace.WithAttributes(attribute.Int("report.subjects", len(subjects))),
	)
	defer span.End()

	results := make([]*models.AnalysisResult, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.reportConcurrency)
	for i, s := range subjects {
		g.Go(func() error {
			r, err := e.AnalyzeSession(gctx, s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rep := &models.Report{
		ID:          e.newID(),
		GeneratedAt: e.now().UTC(),
		TimeRange:   tr,
		SubjectIDs:  make([]string, len(results)),
		AlertCounts: map[models.AlertLevel]int{},
	}
	var sum float64
	for i, r := range results {
		rep.SubjectIDs[i] = r.SubjectID
		rep.AlertCounts[r.AlertLevel]++
		sum += r.OverallBiasScore
	}
	rep.AverageBiasScore = sum / float64(len(results))

	content, err := e.svc.GenerateReport(ctx, &analyzer.ReportRequest{Analyses: results, TimeRange: tr, Options: opts})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, upstream("report", rep.ID, err)
	}
	if content != nil {
		rep.Content = *content
	}

	if !e.caches.Report.CacheReport(rep) {
		e.logger.Warn("report not cached", zap.String("report_id", rep.ID))
	}
	e.logger.Info("report generated",
		zap.String("report_id", rep.ID),
		zap.Int("subjects", len(results)),
		zap.Float64("average_bias_score", rep.AverageBiasScore),
	)
	return rep, nil
}

// GetReport returns a previously generated report.
func (e *Engine) GetReport(_ context.Context, reportID string) (*models.Report, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	r, ok := e.caches.Report.GetReport(reportID)
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, biaserr.ErrNotFound)
	}
	return r, nil
}

// GetDashboardData returns the dashboard for opts, served from the
// dashboard cache when fresh.
func (e *Engine) GetDashboardData(ctx context.Context, opts models.DashboardOptions) (*models.DashboardData, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	if d, ok := e.caches.Dashboard.GetDashboard(opts.ViewerID, opts.TimeRange); ok {
		return d, nil
	}
	d, err := e.svc.Dashboard(ctx, opts)
	if err != nil {
		return nil, upstream("dashboard", opts.ViewerID, err)
	}
	if d == nil {
		d = &models.DashboardData{}
	}
	e.caches.Dashboard.CacheDashboard(opts.ViewerID, opts.TimeRange, d)
	return d, nil
}

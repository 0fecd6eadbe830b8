// Package engine orchestrates the four analysis layers for a subject,
// aggregates their scores into one decision and caches, alerts on and audits
// the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/fairlens/pkg/alert"
	"github.com/pario-ai/fairlens/pkg/analyzer"
	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/config"
	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Auditor records completed analyses. The audit log implements it.
type Auditor interface {
	Record(ctx context.Context, r *models.AnalysisResult) error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDispatcher sets where alerts are delivered.
func WithDispatcher(d alert.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithAuditor sets the audit recorder.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithClock replaces time.Now for result and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSanitizeOptions controls how free text is cleaned before it is sent
// to the analysis service.
func WithSanitizeOptions(o demographics.SanitizeOptions) Option {
	return func(e *Engine) { e.sanitize = o }
}

// WithIDGenerator replaces uuid.NewString for report and alert ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithReportConcurrency caps how many subjects a report analyzes at once.
func WithReportConcurrency(n int) Option {
	return func(e *Engine) { e.reportConcurrency = n }
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Engine runs bias analyses.
type Engine struct {
	svc               analyzer.Service
	caches            *cache.Manager
	logger            *zap.Logger
	dispatcher        alert.Dispatcher
	auditor           Auditor
	now               func() time.Time
	newID             func() string
	sanitize          demographics.SanitizeOptions
	reportConcurrency int

	flight   singleflight.Group
	flightMu sync.Mutex
	calls    map[string]*flightCall

	mu     sync.RWMutex
	cfg    config.Engine
	status state
}

// New creates an engine. The cache manager is shared, not owned: its
// lifecycle stays with the caller.
func New(cfg config.Engine, svc analyzer.Service, caches *cache.Manager, opts ...Option) (*Engine, error) {
	if svc == nil {
		return nil, biaserr.Configuration("analyzer", "analysis service is required")
	}
	if caches == nil {
		return nil, biaserr.Configuration("cache", "cache manager is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		svc:               svc,
		caches:            caches,
		logger:            zap.NewNop(),
		now:               time.Now,
		newID:             uuid.NewString,
		sanitize:          demographics.DefaultSanitizeOptions(),
		reportConcurrency: 4,
		cfg:               cfg,
		calls:             make(map[string]*flightCall),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reportConcurrency < 1 {
		e.reportConcurrency = 1
	}
	return e, nil
}

// Open re-validates the configuration and makes the engine usable. An
// engine cannot be reopened after Close.
func (e *Engine) Open(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case stateOpen:
		return nil
	case stateClosed:
		return fmt.Errorf("open engine: %w", biaserr.ErrNotInitialized)
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	e.status = stateOpen
	e.logger.Info("bias detection engine ready",
		zap.Float64("warning", e.cfg.Thresholds.Warning),
		zap.Float64("high", e.cfg.Thresholds.High),
		zap.Float64("critical", e.cfg.Thresholds.Critical),
		zap.String("alert_min_level", string(e.cfg.AlertMinLevel)),
	)
	return nil
}

// Close marks the engine unusable. Calls in flight complete normally.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = stateClosed
	return nil
}

// policy returns the current configuration, or ErrNotInitialized.
func (e *Engine) policy() (config.Engine, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.status != stateOpen {
		return config.Engine{}, biaserr.ErrNotInitialized
	}
	return e.cfg, nil
}

// Thresholds returns the active alert thresholds.
func (e *Engine) Thresholds() models.Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Thresholds
}

// Weights returns the active layer weights.
func (e *Engine) Weights() models.LayerWeights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Weights
}

// AnalyzeSession returns the bias decision for s. A cached decision is
// returned as is; concurrent calls for the same subject share one analysis.
func (e *Engine) AnalyzeSession(ctx context.Context, s *models.Subject) (*models.AnalysisResult, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	if err := demographics.ValidateSubject(s); err != nil {
		return nil, err
	}
	if r, ok := e.caches.Analysis.GetAnalysis(s.ID); ok {
		e.logger.Debug("analysis cache hit", zap.String("subject_id", s.ID))
		return r, nil
	}

	return e.coalesce(ctx, s)
}

// flightCall is one shared analysis and the number of callers waiting on it.
// It runs on a context detached from every caller and is cancelled once the
// last waiter leaves.
type flightCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// coalesce joins or starts the shared analysis of s. Each caller waits on its
// own ctx, so one caller giving up does not fail the others. The calls map
// and the singleflight keys are only changed together under flightMu.
func (e *Engine) coalesce(ctx context.Context, s *models.Subject) (*models.AnalysisResult, error) {
	e.flightMu.Lock()
	fc, joined := e.calls[s.ID]
	if !joined {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fc = &flightCall{ctx: fctx, cancel: cancel}
		e.calls[s.ID] = fc
	}
	fc.waiters++
	ch := e.flight.DoChan(s.ID, func() (any, error) {
		defer e.finishFlight(s.ID, fc)
		return e.analyze(fc.ctx, s)
	})
	e.flightMu.Unlock()
	if joined {
		coalescedTotal.Inc()
	}

	select {
	case res := <-ch:
		e.leaveFlight(s.ID, fc)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.AnalysisResult).Clone(), nil
	case <-ctx.Done():
		e.leaveFlight(s.ID, fc)
		return nil, ctx.Err()
	}
}

func (e *Engine) finishFlight(id string, fc *flightCall) {
	e.flightMu.Lock()
	e.dropFlightLocked(id, fc)
	e.flightMu.Unlock()
	fc.cancel()
}

func (e *Engine) leaveFlight(id string, fc *flightCall) {
	e.flightMu.Lock()
	fc.waiters--
	last := fc.waiters == 0
	if last {
		e.dropFlightLocked(id, fc)
	}
	e.flightMu.Unlock()
	if last {
		fc.cancel()
	}
}

// dropFlightLocked forgets fc so the next caller starts a fresh analysis.
func (e *Engine) dropFlightLocked(id string, fc *flightCall) {
	if e.calls[id] != fc {
		return
	}
	delete(e.calls, id)
	e.flight.Forget(id)
}

// CachedAnalysis returns the cached decision for subjectID without analyzing.
func (e *Engine) CachedAnalysis(subjectID string) (*models.AnalysisResult, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	r, ok := e.caches.Analysis.GetAnalysis(subjectID)
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", subjectID, biaserr.ErrNotFound)
	}
	return r, nil
}

func (e *Engine) analyze(ctx context.Context, s *models.Subject) (*models.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "engine.AnalyzeSession",
		trace.WithAttributes(attribute.String("subject.id", s.ID)),
	)
	defer span.End()

	pol, err := e.policy()
	if err != nil {
		return nil, err
	}
	p := analyzer.BuildPayloads(s, e.sanitize)

	var lr models.LayerResults
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runLayer(gctx, models.LayerPreprocessing, s.ID, &lr.Preprocessing, func(ctx context.Context) (*models.PreprocessingResult, error) {
			return e.svc.AnalyzePreprocessing(ctx, p.Preprocessing)
		})
	})
	g.Go(func() error {
		return runLayer(gctx, models.LayerModelLevel, s.ID, &lr.ModelLevel, func(ctx context.Context) (*models.ModelLevelResult, error) {
			return e.svc.AnalyzeModelLevel(ctx, p.ModelLevel)
		})
	})
	g.Go(func() error {
		return runLayer(gctx, models.LayerInteractive, s.ID, &lr.Interactive, func(ctx context.Context) (*models.InteractiveResult, error) {
			return e.svc.AnalyzeInteractive(ctx, p.Interactive)
		})
	})
	g.Go(func() error {
		return runLayer(gctx, models.LayerEvaluation, s.ID, &lr.Evaluation, func(ctx context.Context) (*models.EvaluationResult, error) {
			return e.svc.AnalyzeEvaluation(ctx, p.Evaluation)
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("analysis failed", zap.String("subject_id", s.ID), zap.Error(err))
		return nil, err
	}

	res := e.buildResult(s, lr, pol)
	span.SetAttributes(
		attribute.Float64("bias.score", res.OverallBiasScore),
		attribute.String("bias.alert_level", string(res.AlertLevel)),
	)
	analysesTotal.WithLabelValues(string(res.AlertLevel)).Inc()
	e.logger.Info("analysis complete",
		zap.String("subject_id", s.ID),
		zap.Float64("bias_score", res.OverallBiasScore),
		zap.Float64("confidence", res.Confidence),
		zap.String("alert_level", string(res.AlertLevel)),
	)

	if !e.caches.Analysis.CacheAnalysis(res) {
		e.logger.Warn("analysis not cached", zap.String("subject_id", s.ID))
	}
	e.maybeAlert(ctx, res, pol.AlertMinLevel)
	e.record(ctx, res)
	return res, nil
}

// runLayer calls one layer and stores its result in out. Failures are
// wrapped as *biaserr.UpstreamAnalysisError naming the layer.
func runLayer[R any](ctx context.Context, layer models.Layer, subjectID string, out *R, call func(context.Context) (*R, error)) error {
	ctx, span := tracer.Start(ctx, "engine.layer",
		trace.WithAttributes(attribute.String("layer", string(layer))),
	)
	defer span.End()

	start := time.Now()
	r, err := call(ctx)
	layerDuration.WithLabelValues(string(layer)).Observe(time.Since(start).Seconds())
	if err == nil && r == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		upstreamFailures.WithLabelValues(string(layer)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &biaserr.UpstreamAnalysisError{Layer: string(layer), SubjectID: subjectID, Err: err}
	}
	*out = *r
	return nil
}

func (e *Engine) buildResult(s *models.Subject, lr models.LayerResults, pol config.Engine) *models.AnalysisResult {
	overall := OverallScore(lr, pol.Weights)
	d := s.Demographics
	d.CulturalBackground = slices.Clone(d.CulturalBackground)
	return &models.AnalysisResult{
		SubjectID:        s.ID,
		Timestamp:        e.now().UTC(),
		OverallBiasScore: overall,
		LayerResults:     lr,
		Demographics:     d,
		Recommendations:  Recommendations(lr, pol.Thresholds.Warning),
		AlertLevel:       pol.Thresholds.Level(overall),
		Confidence:       Confidence(layerScores(lr)),
	}
}

func (e *Engine) maybeAlert(ctx context.Context, r *models.AnalysisResult, minLevel models.AlertLevel) {
	if e.dispatcher == nil || r.AlertLevel.Rank() < minLevel.Rank() {
		return
	}
	a := alert.FromResult(e.newID(), r)
	if err := e.dispatcher.Dispatch(ctx, a); err != nil {
		alertsTotal.WithLabelValues(string(r.AlertLevel), "failed").Inc()
		e.logger.Warn("alert dispatch failed",
			zap.String("subject_id", r.SubjectID),
			zap.String("alert_level", string(r.AlertLevel)),
			zap.Error(err),
		)
		return
	}
	alertsTotal.WithLabelValues(string(r.AlertLevel), "sent").Inc()
}

func (e *Engine) record(ctx context.Context, r *models.AnalysisResult) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(ctx, r); err != nil {
		e.logger.Warn("audit record failed", zap.String("subject_id", r.SubjectID), zap.Error(err))
	}
}

// ExplainBiasDetection asks the analysis service why result was flagged for
// group. The service receives a copy of result.
func (e *Engine) ExplainBiasDetection(ctx context.Context, result *models.AnalysisResult, group models.Group) (*models.Explanation, error) {
	if _, err := e.policy(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, biaserr.Validation("analysis result is required", "analysis_result")
	}
	if group.Type == "" || group.Value == "" {
		return nil, biaserr.Validation("group type and value are required", "group")
	}
	ex, err := e.svc.Explain(ctx, &analyzer.ExplainRequest{Result: result.Clone(), Group: group})
	if err != nil {
		return nil, upstream("explain", result.SubjectID, err)
	}
	return ex, nil
}

// upstream wraps a service failure unless the service rejected the input.
func upstream(op, subjectID string, err error) error {
	var ve *biaserr.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &biaserr.UpstreamAnalysisError{Layer: op, SubjectID: subjectID, Err: err}
}

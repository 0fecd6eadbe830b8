package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/models"
)

// Config holds the per-façade store policies.
type Config struct {
	Analysis  StoreConfig `yaml:"analysis"`
	Dashboard StoreConfig `yaml:"dashboard"`
	Report    StoreConfig `yaml:"report"`
}

// DefaultConfig returns hour-scale analysis, minute-scale dashboard and
// day-scale report policies.
func DefaultConfig() Config {
	return Config{
		Analysis:  StoreConfig{MaxEntries: defaultAnalysisLimit, DefaultTTL: defaultAnalysisTTL, CleanupInterval: 5 * time.Minute},
		Dashboard: StoreConfig{MaxEntries: defaultDashboardLimit, DefaultTTL: defaultDashboardTTL, CleanupInterval: time.Minute},
		Report:    StoreConfig{MaxEntries: defaultReportLimit, DefaultTTL: defaultReportTTL, CleanupInterval: time.Hour},
	}
}

// Validate checks every store policy.
func (c Config) Validate() error {
	if err := c.Analysis.Validate(AnalysisCacheName); err != nil {
		return err
	}
	if err := c.Dashboard.Validate(DashboardCacheName); err != nil {
		return err
	}
	return c.Report.Validate(ReportCacheName)
}

// ManagerOption customizes a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithManagerLogger sets the logger shared by the three façades.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = l }
}

// WithManagerClock replaces time.Now in the three stores.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) { o.now = now }
}

// Manager owns the analysis, dashboard and report caches. It is constructed
// explicitly and handed to whoever needs it; Open starts the background
// sweepers and Close stops them.
type Manager struct {
	Analysis  *AnalysisCache
	Dashboard *DashboardCache
	Report    *ReportCache

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewManager builds the three façades from cfg.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	analysis, err := NewAnalysisCache(cfg.Analysis, o.logger, WithClock[*models.AnalysisResult](o.now))
	if err != nil {
		return nil, err
	}
	dashboard, err := NewDashboardCache(cfg.Dashboard, o.logger, WithClock[*models.DashboardData](o.now))
	if err != nil {
		return nil, err
	}
	report, err := NewReportCache(cfg.Report, o.logger, WithClock[*models.Report](o.now))
	if err != nil {
		return nil, err
	}
	return &Manager{Analysis: analysis, Dashboard: dashboard, Report: report}, nil
}

// Open starts the periodic expiry sweep of every store.
func (m *Manager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened || m.closed {
		return
	}
	m.opened = true
	m.Analysis.store.Start()
	m.Dashboard.store.Start()
	m.Report.store.Start()
}

// Close stops the sweepers. Stored entries stay readable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.Analysis.store.Close()
	m.Dashboard.store.Close()
	m.Report.store.Close()
	return nil
}

// Stats returns a snapshot of every store keyed by cache name.
func (m *Manager) Stats() map[string]Stats {
	return map[string]Stats{
		AnalysisCacheName:  m.Analysis.Stats(),
		DashboardCacheName: m.Dashboard.Stats(),
		ReportCacheName:    m.Report.Stats(),
	}
}

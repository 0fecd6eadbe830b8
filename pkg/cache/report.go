package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/models"
)

const (
	ReportCacheName    = "report"
	TagReport          = "report"
	defaultReportTTL   = 7 * 24 * time.Hour
	defaultReportLimit = 50
)

// ReportKey returns the cache key of a report.
func ReportKey(reportID string) string { return "report:" + reportID }

// ReportCache holds generated reports. Reports are point-in-time snapshots and
// are only invalidated by id.
type ReportCache struct {
	store  *Store[*models.Report]
	logger *zap.Logger
}

// NewReportCache creates the report façade over its own store.
func NewReportCache(cfg StoreConfig, logger *zap.Logger, opts ...StoreOption[*models.Report]) (*ReportCache, error) {
	s, err := NewStore[*models.Report](ReportCacheName, cfg, storeOptions(logger, ReportCacheName, opts)...)
	if err != nil {
		return nil, err
	}
	return &ReportCache{store: s, logger: logger}, nil
}

// CacheReport stores r under its id.
func (c *ReportCache) CacheReport(r *models.Report) bool {
	if r == nil || r.ID == "" {
		return false
	}
	return guard(c.logger, ReportCacheName, "set", func() {
		c.store.Set(ReportKey(r.ID), r, SetOptions{Tags: []string{TagReport, ReportKey(r.ID)}})
	})
}

// GetReport returns the cached report with the given id.
func (c *ReportCache) GetReport(reportID string) (*models.Report, bool) {
	var (
		r   *models.Report
		hit bool
	)
	if !guard(c.logger, ReportCacheName, "get", func() {
		r, hit = c.store.Get(ReportKey(reportID))
	}) {
		return nil, false
	}
	return r, hit && r != nil
}

// InvalidateReport drops the report with the given id.
func (c *ReportCache) InvalidateReport(reportID string) bool {
	return c.store.Delete(ReportKey(reportID))
}

// Stats returns the underlying store statistics.
func (c *ReportCache) Stats() Stats { return c.store.Stats() }

package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/models"
)

const (
	DashboardCacheName    = "dashboard"
	TagDashboard          = "dashboard"
	defaultDashboardTTL   = 5 * time.Minute
	defaultDashboardLimit = 100
)

// DashboardKey returns the cache key of a viewer's dashboard for a time range.
func DashboardKey(viewerID, timeRange string) string {
	return "dashboard:" + viewerID + ":" + timeRange
}

// ViewerTag returns the tag shared by every dashboard of viewerID.
func ViewerTag(viewerID string) string { return "viewer:" + viewerID }

// DashboardCache memoizes aggregated dashboard views for a short time.
type DashboardCache struct {
	store  *Store[*models.DashboardData]
	logger *zap.Logger
}

// NewDashboardCache creates the dashboard façade over its own store.
func NewDashboardCache(cfg StoreConfig, logger *zap.Logger, opts ...StoreOption[*models.DashboardData]) (*DashboardCache, error) {
	s, err := NewStore[*models.DashboardData](DashboardCacheName, cfg, storeOptions(logger, DashboardCacheName, opts)...)
	if err != nil {
		return nil, err
	}
	return &DashboardCache{store: s, logger: logger}, nil
}

// CacheDashboard stores data for the viewer and time range.
func (c *DashboardCache) CacheDashboard(viewerID, timeRange string, data *models.DashboardData) bool {
	if data == nil {
		return false
	}
	tags := []string{TagDashboard, ViewerTag(viewerID), "range:" + timeRange}
	return guard(c.logger, DashboardCacheName, "set", func() {
		c.store.Set(DashboardKey(viewerID, timeRange), data, SetOptions{Tags: tags})
	})
}

// GetDashboard returns the cached dashboard for the viewer and time range.
func (c *DashboardCache) GetDashboard(viewerID, timeRange string) (*models.DashboardData, bool) {
	var (
		data *models.DashboardData
		hit  bool
	)
	if !guard(c.logger, DashboardCacheName, "get", func() {
		data, hit = c.store.Get(DashboardKey(viewerID, timeRange))
	}) {
		return nil, false
	}
	return data, hit && data != nil
}

// InvalidateViewer drops every dashboard cached for viewerID.
func (c *DashboardCache) InvalidateViewer(viewerID string) int {
	return c.store.InvalidateByTags(ViewerTag(viewerID))
}

// InvalidateAll drops every dashboard.
func (c *DashboardCache) InvalidateAll() int {
	return c.store.InvalidateByTags(TagDashboard)
}

// Stats returns the underlying store statistics.
func (c *DashboardCache) Stats() Stats { return c.store.Stats() }

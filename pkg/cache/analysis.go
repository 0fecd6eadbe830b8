package cache

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Tags written on every analysis entry.
const (
	TagBiasAnalysis      = "bias-analysis"
	tagSubjectPrefix     = "subject:"
	tagAlertPrefix       = "alert:"
	analysisKeyPrefix    = "analysis:"
	AnalysisCacheName    = "analysis"
	defaultAnalysisTTL   = 2 * time.Hour
	defaultAnalysisLimit = 1000
)

// AnalysisKey returns the cache key for a subject.
func AnalysisKey(subjectID string) string { return analysisKeyPrefix + subjectID }

// SubjectTag returns the tag shared by every entry of a subject.
func SubjectTag(subjectID string) string { return tagSubjectPrefix + subjectID }

// AlertTag returns the tag shared by every entry with the given alert level.
func AlertTag(level models.AlertLevel) string { return tagAlertPrefix + string(level) }

// AnalysisCache memoizes per-subject analysis results.
type AnalysisCache struct {
	store  *Store[*models.AnalysisResult]
	logger *zap.Logger
}

// NewAnalysisCache creates the analysis façade over its own store.
func NewAnalysisCache(cfg StoreConfig, logger *zap.Logger, opts ...StoreOption[*models.AnalysisResult]) (*AnalysisCache, error) {
	s, err := NewStore[*models.AnalysisResult](AnalysisCacheName, cfg, storeOptions(logger, AnalysisCacheName, opts)...)
	if err != nil {
		return nil, err
	}
	return &AnalysisCache{store: s, logger: logger}, nil
}

// CacheAnalysis stores a copy of r and reports whether it was stored.
func (c *AnalysisCache) CacheAnalysis(r *models.AnalysisResult) bool {
	if r == nil || r.SubjectID == "" {
		c.logger.Warn("refusing to cache analysis without subject id")
		return false
	}
	tags := []string{
		TagBiasAnalysis,
		SubjectTag(r.SubjectID),
		AlertTag(r.AlertLevel),
		demographics.ParticipantTag(r.Demographics),
	}
	return guard(c.logger, AnalysisCacheName, "set", func() {
		c.store.Set(AnalysisKey(r.SubjectID), r.Clone(), SetOptions{Tags: tags})
	})
}

// GetAnalysis returns a copy of the cached result for subjectID.
func (c *AnalysisCache) GetAnalysis(subjectID string) (*models.AnalysisResult, bool) {
	var (
		res *models.AnalysisResult
		hit bool
	)
	ok := guard(c.logger, AnalysisCacheName, "get", func() {
		var v *models.AnalysisResult
		v, hit = c.store.Get(AnalysisKey(subjectID))
		if hit {
			res = v.Clone()
		}
	})
	if !ok || !hit || res == nil {
		return nil, false
	}
	return res, true
}

// InvalidateSubject drops every cached entry for subjectID.
func (c *AnalysisCache) InvalidateSubject(subjectID string) int {
	return c.store.InvalidateByTags(SubjectTag(subjectID))
}

// InvalidateAlertLevel drops every cached result with the given alert level.
func (c *AnalysisCache) InvalidateAlertLevel(level models.AlertLevel) int {
	return c.store.InvalidateByTags(AlertTag(level))
}

// InvalidateByDemographics drops every entry whose participant tag shares any
// component with a non-empty age, gender or ethnicity of partial. Matching is
// by value across components, so it may over-invalidate when the same value
// appears under different dimensions.
func (c *AnalysisCache) InvalidateByDemographics(partial models.Demographics) int {
	values := make(map[string]struct{}, 3)
	for _, v := range []string{partial.Age, partial.Gender, partial.Ethnicity} {
		if v != "" {
			values[demographics.NormalizeTagValue(v)] = struct{}{}
		}
	}
	if len(values) == 0 {
		return 0
	}
	n := c.store.removeTagged(func(tag string) bool {
		rest, ok := strings.CutPrefix(tag, demographics.ParticipantTagPrefix)
		if !ok {
			return false
		}
		for _, part := range strings.Split(rest, ":") {
			if _, hit := values[part]; hit {
				return true
			}
		}
		return false
	})
	c.logger.Debug("invalidated cohort", zap.Int("removed", n), zap.Any("demographics", partial))
	return n
}

// Stats returns the underlying store statistics.
func (c *AnalysisCache) Stats() Stats { return c.store.Stats() }

// Keys lists cached keys. Diagnostics only.
func (c *AnalysisCache) Keys() []string { return c.store.Keys() }

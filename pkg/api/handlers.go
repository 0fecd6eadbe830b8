package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/engine"
	"github.com/pario-ai/fairlens/pkg/fairness"
	"github.com/pario-ai/fairlens/pkg/models"
)

// ReportRequest is the body of POST /v1/reports.
type ReportRequest struct {
	Sessions  []*models.Subject    `json:"sessions"`
	TimeRange models.TimeRange     `json:"time_range"`
	Options   models.ReportOptions `json:"options"`
}

// ExplainRequest is the body of POST /v1/explain. Either the full result or
// the id of a cached analysis must be given.
type ExplainRequest struct {
	Result    *models.AnalysisResult `json:"analysis_result,omitempty"`
	SubjectID string                 `json:"session_id,omitempty"`
	Group     models.Group           `json:"demographic_group"`
}

// FairnessRequest is the body of POST /v1/fairness.
type FairnessRequest struct {
	Groups          map[string]fairness.Counts    `json:"groups"`
	Counterfactuals []fairness.CounterfactualPair `json:"counterfactuals,omitempty"`
}

// PolicyResponse is returned by GET /v1/thresholds.
type PolicyResponse struct {
	Thresholds models.Thresholds   `json:"thresholds"`
	Weights    models.LayerWeights `json:"layer_weights"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var subject models.Subject
	if err := c.ShouldBindJSON(&subject); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.AnalyzeSession(c.Request.Context(), &subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	res, err := s.engine.CachedAnalysis(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCreateReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rep, err := s.engine.GenerateBiasReport(c.Request.Context(), req.Sessions, req.TimeRange, req.Options)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

func (s *Server) handleGetReport(c *gin.Context) {
	rep, err := s.engine.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleDashboard(c *gin.Context) {
	var opts models.DashboardOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		badRequest(c, err)
		return
	}
	data, err := s.engine.GetDashboardData(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) handleGetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, PolicyResponse{Thresholds: s.engine.Thresholds(), Weights: s.engine.Weights()})
}

func (s *Server) handleUpdateThresholds(c *gin.Context) {
	var u engine.ThresholdsUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.engine.UpdateThresholds(c.Request.Context(), u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleUpdateWeights(c *gin.Context) {
	var w models.LayerWeights
	if err := c.ShouldBindJSON(&w); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.engine.UpdateWeights(c.Request.Context(), w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleExplain(c *gin.Context) {
	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result := req.Result
	if result == nil {
		if req.SubjectID == "" {
			writeError(c, biaserr.Validation("analysis_result or session_id is required", "analysis_result", "session_id"))
			return
		}
		cached, err := s.engine.CachedAnalysis(req.SubjectID)
		if err != nil {
			writeError(c, err)
			return
		}
		result = cached
	}
	ex, err := s.engine.ExplainBiasDetection(c.Request.Context(), result, req.Group)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}

func (s *Server) handleFairness(c *gin.Context) {
	var req FairnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := fairness.Calculate(req.Groups)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(req.Counterfactuals) > 0 {
		m = m.WithCounterfactuals(req.Counterfactuals)
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.caches.Stats())
}

func (s *Server) handleInvalidateDemographics(c *gin.Context) {
	partial := models.Demographics{
		Age:       c.Query("age"),
		Gender:    c.Query("gender"),
		Ethnicity: c.Query("ethnicity"),
	}
	if partial.Age == "" && partial.Gender == "" && partial.Ethnicity == "" {
		writeError(c, biaserr.Validation("at least one of age, gender or ethnicity is required", "age", "gender", "ethnicity"))
		return
	}
	n := s.caches.Analysis.InvalidateByDemographics(partial)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) handleInvalidateSubject(c *gin.Context) {
	n := s.caches.Analysis.InvalidateSubject(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

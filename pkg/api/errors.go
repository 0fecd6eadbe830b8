package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pario-ai/fairlens/pkg/biaserr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	Code      int      `json:"code"`
	Fields    []string `json:"fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

// classify maps an error to its HTTP status and error type.
func classify(err error) (int, string) {
	var (
		ve *biaserr.ValidationError
		ue *biaserr.UpstreamAnalysisError
		ce *biaserr.ConfigurationError
		ie *biaserr.InsufficientDataError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, biaserr.ErrNotInitialized):
		return http.StatusServiceUnavailable, "not_initialized"
	case errors.As(err, &ue):
		return http.StatusBadGateway, "upstream_error"
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity, "configuration_error"
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, biaserr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(c *gin.Context, err error) {
	code, typ := classify(err)
	d := errorDetail{
		Message:   err.Error(),
		Type:      typ,
		Code:      code,
		Retryable: biaserr.IsRetryable(err),
	}
	var ve *biaserr.ValidationError
	if errors.As(err, &ve) {
		d.Fields = ve.Fields
	}
	c.AbortWithStatusJSON(code, errorBody{Error: d})
}

// badRequest reports a body or query that could not be decoded.
func badRequest(c *gin.Context, err error) {
	writeError(c, biaserr.Validation(err.Error()))
}

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/engine"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Analyzer is the part of the engine the tools drive.
type Analyzer interface {
	AnalyzeSession(ctx context.Context, s *models.Subject) (*models.AnalysisResult, error)
	UpdateThresholds(ctx context.Context, u engine.ThresholdsUpdate) (models.Thresholds, error)
	Thresholds() models.Thresholds
	Weights() models.LayerWeights
}

// CacheStatter provides cache statistics keyed by cache name.
type CacheStatter interface {
	Stats() map[string]cache.Stats
}

// AuditSearcher queries the audit log.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	analyzer Analyzer
	cache    CacheStatter
	auditor  AuditSearcher
	version  string
	logger   *zap.Logger
}

// New creates a new MCP Server. The cache and audit log are optional.
func New(a Analyzer, c CacheStatter, au AuditSearcher, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		analyzer: a,
		cache:    c,
		auditor:  au,
		version:  version,
		logger:   logger,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, failure(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

// dispatch routes one request. Notifications never get a response, even when
// they name an unknown method.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return failure(req.ID, CodeInvalidRequest, "invalid request")
	}

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = reply(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "fairlens", Version: s.version},
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		})
	case "ping":
		resp = reply(req.ID, struct{}{})
	case "tools/list":
		resp = reply(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	default:
		resp = failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) (resp *Response) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return reply(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mcp tool panicked", zap.String("tool", params.Name), zap.Any("panic", r))
			resp = failure(req.ID, CodeInternalError, fmt.Sprintf("tool %s failed", params.Name))
		}
	}()

	s.logger.Debug("mcp tool call", zap.String("tool", params.Name))
	return reply(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", zap.Error(err))
	}
}

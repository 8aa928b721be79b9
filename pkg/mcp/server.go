// Package mcp exposes read-only cachegate state as MCP tools over a
// line-delimited JSON-RPC 2.0 stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
)

// CacheInspector reads cache counters and recent activity.
type CacheInspector interface {
	Stats(ctx context.Context) (models.CacheStats, error)
	RecentActivity(ctx context.Context) ([]models.ActivityLogEntry, error)
}

// KeyCoverage reports which services have a provider key.
type KeyCoverage interface {
	Coverage(ctx context.Context) (map[models.Service]bool, error)
}

// ModelLister lists the model catalog.
type ModelLister interface {
	List(ctx context.Context) ([]models.ModelRecord, error)
	ForService(ctx context.Context, service models.Service) ([]models.ModelRecord, error)
}

// Server answers MCP requests. Any collaborator may be nil; its tools
// then report that it is not configured.
type Server struct {
	cache   CacheInspector
	keys    KeyCoverage
	models  ModelLister
	version string
	logger  *zap.Logger
}

// New creates a Server.
func New(cache CacheInspector, keys KeyCoverage, ml ModelLister, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cache:   cache,
		keys:    keys,
		models:  ml,
		version: version,
		logger:  logger.With(zap.String("component", "mcp")),
	}
}

// Run reads one request per line from r and writes responses to w until
// r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "parse error"}})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "cachegate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: allTools}}
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: CodeInvalidParams, Message: "invalid params"}}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: errorResult("unknown tool: " + params.Name)}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: handler(ctx, s, params.Arguments)}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

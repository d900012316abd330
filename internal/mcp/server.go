// Package mcp serves the tool-calling JSON-RPC endpoint used by assistant
// hosts: tool listing and invocation plus the briefing widget resource.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
	"schoolsync/internal/syncer"
)

const maxRequestBytes = 1 << 20

// Store is the read side the tools query, plus the planner board.
type Store interface {
	UpcomingAssignments(ctx context.Context, from, to time.Time, limit int, openOnly bool) ([]model.Assignment, error)
	ResourcesByCourseName(ctx context.Context, courseName string) ([]model.Resource, error)
	AddPlannerTask(ctx context.Context, t model.PlannerTask) (model.PlannerTask, error)
	ListPlannerTasks(ctx context.Context, column string) ([]model.PlannerTask, error)
	MovePlannerTask(ctx context.Context, id int64, column string) error
	LatestSyncRun(ctx context.Context) (model.SyncRun, error)
}

// SyncTrigger runs a sync cycle on demand.
type SyncTrigger interface {
	TriggerNow(ctx context.Context) (syncer.Result, error)
}

type Options struct {
	Store Store
	// Sync is optional; without it the sync.run tool reports it is unavailable.
	Sync SyncTrigger
	Now  func() time.Time
}

type Server struct {
	store Store
	sync  SyncTrigger
	now   func() time.Time

	tools map[string]tool
	order []string
}

func NewServer(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		store: opts.Store,
		sync:  opts.Sync,
		now:   now,
		tools: make(map[string]tool),
	}
	s.registerTools()
	return s
}

// ServeHTTP accepts one JSON-RPC request per POST. Protocol errors are
// reported in the JSON-RPC envelope with HTTP 200.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusOK, errorResponse(nil, newError(CodeParseError, "failed to read request body")))
		return
	}

	resp := s.Handle(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, http.StatusOK, resp)
}

// Handle processes one raw request. It returns nil for notifications, which
// get no response.
func (s *Server) Handle(ctx context.Context, body []byte) *Response {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return errorResponse(nil, newError(CodeInvalidRequest, "batch requests are not supported"))
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return errorResponse(nil, newError(CodeParseError, "parse error"))
	}

	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		appLog.Debug("mcp notification", "method", req.Method)
		return nil
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" || req.ID == nil {
		return errorResponse(req.ID, newError(CodeInvalidRequest, "request must carry jsonrpc \"2.0\", id and method"))
	}

	start := time.Now()
	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		appLog.Info("mcp request failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return errorResponse(req.ID, rpcErr)
	}
	appLog.Debug("mcp request", "method", req.Method, "duration", time.Since(start).String())
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req Request) (result any, rpcErr *RPCError) {
	defer func() {
		if p := recover(); p != nil {
			appLog.Error("mcp handler panic", fmt.Errorf("%v", p), "method", req.Method, "stack", string(debug.Stack()))
			result = nil
			rpcErr = newError(CodeInternalError, "internal error")
		}
	}()

	switch req.Method {
	case "initialize":
		return s.initialize(), nil
	case "ping":
		return struct{}{}, nil
	case "tools/list", "list_tools":
		return map[string]any{"tools": s.toolDescriptors()}, nil
	case "tools/call", "call_tool":
		return s.callTool(ctx, req.Params)
	case "resources/list", "list_resources":
		return map[string]any{"resources": listResources()}, nil
	case "resources/read", "read_resource":
		return readResource(req.Params)
	default:
		return nil, newError(CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) initialize() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{"name": serverName, "version": serverVersion},
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *RPCError) {
	var p callParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams("params must be an object")
		}
	}
	if p.Name == "" {
		return nil, invalidParams("tool name is required")
	}

	t, ok := s.tools[p.Name]
	if !ok {
		return nil, invalidParams("unknown tool: %s", p.Name)
	}

	args := p.Arguments
	if isEmptyJSON(args) {
		args = p.Args
	}
	if isEmptyJSON(args) {
		args = json.RawMessage(`{}`)
	}

	res, err := t.handler(ctx, args)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		appLog.Error("tool failed", err, "tool", p.Name)
		return errorResult(fmt.Sprintf("%s failed: %v", p.Name, err)), nil
	}
	return res, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func errorResponse(id json.RawMessage, e *RPCError) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: e}
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		appLog.Error("failed to write JSON-RPC response", err)
	}
}

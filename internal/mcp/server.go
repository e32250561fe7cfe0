// Package mcp serves the Model Context Protocol over stdio. Requests are
// newline-delimited JSON-RPC 2.0 messages on stdin; responses go to
// stdout. Nothing else may write to stdout while the server runs.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/config"
	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/router"
)

const (
	protocolVersion = "2025-03-26"
	serverName      = "wpmcp"
	serverVersion   = "1.0.0"

	// maxLineBytes bounds a single request line; uploads reference files
	// by path, so requests stay small.
	maxLineBytes = 4 << 20
)

// Executor is the slice of the router the server drives.
type Executor interface {
	Execute(ctx context.Context, siteID, opName string, params map[string]any) (*router.Result, error)
	Sites() []config.SiteConfig
	Stats() []router.SiteStats
	ClearCache(siteID string) error
}

type Server struct {
	exec   Executor
	tools  map[string]toolDefinition
	order  []string
	logger *zap.Logger

	writeMu sync.Mutex
	out     io.Writer
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewServer(exec Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{exec: exec, logger: logger}
	s.tools, s.order = buildToolRegistry()
	return s
}

// Serve reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled. Each request runs on its own goroutine
// so a slow upstream never blocks the wire.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.write(rpcResponse{JSONRPC: "2.0", ID: nil,
				Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		if req.JSONRPC != "2.0" {
			s.write(rpcResponse{JSONRPC: "2.0", ID: decodeID(req.ID),
				Error: &rpcError{Code: -32600, Message: `jsonrpc must be "2.0"`}})
			continue
		}

		wg.Add(1)
		go func(req rpcRequest) {
			defer wg.Done()
			s.handle(ctx, req)
		}(req)
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req rpcRequest) {
	id := decodeID(req.ID)
	notification := req.ID == nil

	switch req.Method {
	case "initialize":
		s.reply(id, notification, s.initializeResult())
	case "notifications/initialized":
		// Acknowledgement only.
	case "ping":
		s.reply(id, notification, map[string]any{})
	case "tools/list":
		s.reply(id, notification, s.toolsListResult())
	case "tools/call":
		s.handleToolsCall(ctx, id, notification, req.Params)
	default:
		if notification {
			return
		}
		s.write(rpcResponse{JSONRPC: "2.0", ID: id,
			Error: &rpcError{Code: -32601, Message: "method not found"}})
	}
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"instructions": "Call tools with a \"site\" argument naming a configured WordPress site.",
	}
}

func (s *Server) toolsListResult() map[string]any {
	tools := make([]map[string]any, 0, len(s.order))
	for _, name := range s.order {
		def := s.tools[name]
		tools = append(tools, map[string]any{
			"name":        def.name,
			"description": def.description,
			"inputSchema": def.schema,
		})
	}
	return map[string]any{"tools": tools}
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, id any, notification bool, raw json.RawMessage) {
	var p toolsCallParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		if notification {
			return
		}
		s.write(rpcResponse{JSONRPC: "2.0", ID: id,
			Error: &rpcError{Code: -32602, Message: "tools/call requires name and arguments"}})
		return
	}

	def, ok := s.tools[p.Name]
	if !ok {
		if notification {
			return
		}
		s.write(rpcResponse{JSONRPC: "2.0", ID: id,
			Error: &rpcError{Code: -32602, Message: "unknown tool: " + p.Name}})
		return
	}

	result, err := def.handler(ctx, s, p.Arguments)
	if err != nil {
		// Tool failures are results, not protocol errors.
		s.reply(id, notification, toolError(err))
		return
	}
	s.reply(id, notification, result)
}

// toolError renders an error as an isError tool result carrying the
// stable kind so callers can branch without parsing prose.
func toolError(err error) map[string]any {
	kind := string(errors.KindOf(err))
	payload, _ := json.Marshal(map[string]any{
		"error":   kind,
		"message": err.Error(),
	})
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(payload)}},
		"isError": true,
	}
}

func textResult(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return toolError(errors.Wrap(err, errors.KindTransportError, "encoding result"))
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(raw)}},
	}
}

func (s *Server) reply(id any, notification bool, result any) {
	if notification {
		return
	}
	s.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) write(resp rpcResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := json.NewEncoder(s.out).Encode(resp); err != nil {
		s.logger.Error("writing response", zap.String("event", "mcp.write.error"), zap.Error(err))
	}
}

func decodeID(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

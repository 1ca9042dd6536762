// Package mcp serves the learned model to coding assistants over the Model
// Context Protocol (JSON-RPC 2.0 on stdio).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

const protocolVersion = "2024-11-05"

// Server is an MCP stdio server. Requests are handled one at a time, so
// tool handlers never run concurrently.
type Server struct {
	learner Learner
	version string
	tools   []toolDef
	now     func() time.Time
	logger  *zap.Logger
}

type toolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     toolHandler
}

type toolHandler func(args json.RawMessage) (any, error)

type jsonrpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *jsonrpcError    `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
)

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type toolsCallResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock sets the clock used for the hour of day in suggestions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer returns a Server exposing l's suggestions and recording.
func NewServer(l Learner, version string, opts ...Option) *Server {
	s := &Server{
		learner: l,
		version: version,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	addTools(s)
	return s
}

func (s *Server) registerTool(def toolDef) {
	s.tools = append(s.tools, def)
}

// Run reads JSON-RPC messages from r and writes responses to w until ctx is
// cancelled or r reaches EOF. Both end it cleanly with a nil error.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	lineCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lineCh)
		for scanner.Scan() {
			select {
			case lineCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line, ok := <-lineCh:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			if err := s.handleLine(line, bw); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleLine(line string, bw *bufio.Writer) error {
	var req jsonrpcRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return s.writeResponse(bw, jsonrpcResponse{
			JSONRPC: "2.0",
			Error:   &jsonrpcError{Code: codeParseError, Message: "Parse error"},
		})
	}
	// Notifications get no response.
	if req.ID == nil {
		return nil
	}

	resp := jsonrpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "termlearn", "version": s.version},
		}
	case "tools/list":
		entries := make([]toolListEntry, 0, len(s.tools))
		for _, t := range s.tools {
			entries = append(entries, toolListEntry{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
		resp.Result = map[string]any{"tools": entries}
	case "tools/call":
		var params toolsCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &jsonrpcError{Code: codeInvalidParams, Message: "Invalid params"}
			break
		}
		resp.Result = s.callTool(params)
	default:
		resp.Error = &jsonrpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	return s.writeResponse(bw, resp)
}

// callTool runs a tool and wraps its result, or its failure, as text content.
func (s *Server) callTool(params toolsCallParams) toolsCallResult {
	var tool *toolDef
	for i := range s.tools {
		if s.tools[i].Name == params.Name {
			tool = &s.tools[i]
			break
		}
	}
	if tool == nil {
		return errorResult(fmt.Sprintf("unknown tool: %s", params.Name))
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	result, err := tool.Handler(args)
	if err != nil {
		s.logger.Debug("tool failed", zap.String("tool", tool.Name), zap.Error(err))
		return errorResult(err.Error())
	}
	text, err := json.Marshal(result)
	if err != nil {
		return errorResult(err.Error())
	}
	return toolsCallResult{Content: []mcpContent{{Type: "text", Text: string(text)}}}
}

func errorResult(msg string) toolsCallResult {
	return toolsCallResult{Content: []mcpContent{{Type: "text", Text: msg}}, IsError: true}
}

// writeResponse writes resp as a single JSON line and flushes.
func (s *Server) writeResponse(bw *bufio.Writer, resp jsonrpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := bw.Write(data); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

// Package querytool exposes a connection over the Model Context Protocol:
// one tool per callable procedure, plus the schema and snapshot as
// resources. It is the ad-hoc path for procedures that need arguments.
package querytool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/ggoodman/candid-explorer-go/explorer"
	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/internal/logctx"
	"github.com/ggoodman/candid-explorer-go/mcp"
	"github.com/ggoodman/candid-explorer-go/mcpservice"
	"github.com/ggoodman/candid-explorer-go/methods"
	"github.com/ggoodman/candid-explorer-go/stdio"
)

const (
	SchemaURI   = "candid://schema"
	SnapshotURI = "candid://snapshot"

	describeTool = "candid_describe"
	loadTool     = "candid_load"

	instructions = "Call candid_describe to see the service's procedures. candid_load fetches every parameterless getter; other procedures are individual tools."
)

// Option configures a Server.
type Option func(*Server)

// WithUpdates also exposes update procedures as tools. By default only
// query procedures are callable.
func WithUpdates() Option {
	return func(s *Server) { s.updates = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server adapts a Connection to MCP. The connection can be swapped while
// clients are attached; the tool list follows it.
type Server struct {
	updates bool
	log     *slog.Logger

	mu   sync.RWMutex
	conn *explorer.Connection

	tools     *mcpservice.ToolsContainer
	resources *mcpservice.ResourcesContainer
}

// New builds a Server for conn.
func New(conn *explorer.Connection, opts ...Option) *Server {
	s := &Server{conn: conn, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = logctx.Wrap(s.log)
	s.tools = mcpservice.NewToolsContainer(s.Tools()...)
	s.resources = mcpservice.NewResourcesContainer(s.Resources()...)
	return s
}

func (s *Server) connection() *explorer.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// SetConnection replaces the connection and rebuilds the tool list.
// Attached clients are told the list changed.
func (s *Server) SetConnection(conn *explorer.Connection) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.tools.Replace(s.Tools()...)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ToolName maps a procedure name onto the MCP tool name alphabet.
func ToolName(procedure string) string {
	n := unsafeName.ReplaceAllString(procedure, "_")
	if len(n) > 64 {
		n = n[:64]
	}
	return n
}

type describeArgs struct{}

type loadArgs struct {
	Privileged bool `json:"privileged,omitempty" jsonschema:"description=Try the bulk export procedure first"`
}

// Tools returns the describe and load tools followed by one tool per
// exposed procedure, in declaration order.
func (s *Server) Tools() []mcpservice.StaticTool {
	conn := s.connection()
	tools := []mcpservice.StaticTool{
		mcpservice.TypedTool[describeArgs](describeTool,
			"List the service's procedures, their classification and parameter requirements.",
			func(ctx context.Context, _ describeArgs) (*mcp.CallToolResult, error) {
				return s.describe(conn), nil
			}),
		mcpservice.TypedTool[loadArgs](loadTool,
			"Load every parameterless getter and return the data with skipped and failed getters.",
			func(ctx context.Context, a loadArgs) (*mcp.CallToolResult, error) {
				return s.load(ctx, conn, a.Privileged), nil
			}),
	}

	h := conn.Handle()
	for _, name := range h.Names() {
		p, _ := h.Procedure(name)
		if p.Mode != idl.Query && !s.updates {
			continue
		}
		req := conn.Requirements().Lookup(name)
		raw, err := json.Marshal(InputSchema(req))
		if err != nil {
			s.log.Warn("querytool.schema_failed", slog.String("method", name), slog.Any("err", err))
			continue
		}
		desc := fmt.Sprintf("Call the %s procedure %s.", p.Mode, name)
		if sig, ok := conn.Result().Lookup(name); ok && sig.Returns != "" {
			desc += " Returns " + sig.Returns + "."
		}
		tool := mcp.Tool{Name: ToolName(name), Description: desc, InputSchema: raw}
		if p.Mode == idl.Query {
			tool.Annotations = &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true}
		}
		tools = append(tools, mcpservice.StaticTool{Descriptor: tool, Handler: s.procedureHandler(conn, name, req)})
	}
	return tools
}

// Resources returns the schema and snapshot resources. Both are rendered
// from the current connection at read time.
func (s *Server) Resources() []mcpservice.StaticResource {
	return []mcpservice.StaticResource{
		{
			Descriptor: mcp.Resource{
				URI:         SchemaURI,
				Name:        "Inferred schema",
				Description: "Sections and fields inferred from the last loaded data",
				MimeType:    "application/json",
			},
			Read: s.jsonResource(func(c *explorer.Connection) any { return c.Schema() }),
		},
		{
			Descriptor: mcp.Resource{
				URI:         SnapshotURI,
				Name:        "Data snapshot",
				Description: "The last loaded data, keyed by section",
				MimeType:    "application/json",
			},
			Read: s.jsonResource(func(c *explorer.Connection) any { return c.Snapshot() }),
		},
	}
}

// Capabilities assembles the server capabilities served to clients.
func (s *Server) Capabilities(name, version string) mcpservice.ServerCapabilities {
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: name, Version: version}),
		mcpservice.WithInstructions(instructions),
		mcpservice.WithToolsCapability(s.tools),
		mcpservice.WithResourcesCapability(s.resources),
	)
}

// ServeStdio serves on stdin and stdout, or the streams given in opts,
// until the client disconnects or ctx ends.
func (s *Server) ServeStdio(ctx context.Context, name, version string, opts ...stdio.Option) error {
	opts = append([]stdio.Option{stdio.WithLogger(s.log)}, opts...)
	return stdio.NewHandler(s.Capabilities(name, version), opts...).Serve(ctx)
}

// Close releases clients waiting for tool list changes.
func (s *Server) Close() {
	s.tools.Close()
}

func (s *Server) procedureHandler(conn *explorer.Connection, name string, req methods.Requirement) mcpservice.ToolHandler {
	return func(ctx context.Context, call *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})
		given, err := decodeArguments(call.Arguments)
		if err != nil {
			return mcpservice.Errorf("invalid arguments: %v", err), nil
		}
		args := make([]any, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			key := argName(req, i)
			v, ok := given[key]
			if !ok {
				if i < len(req.Types) && req.Types[i].LogicalType == "opt" {
					args = append(args, nil)
					continue
				}
				return mcpservice.Errorf("missing argument %q", key), nil
			}
			args = append(args, v)
		}
		out, err := conn.Invoke(ctx, name, args...)
		if err != nil {
			s.log.InfoContext(ctx, "querytool.call_failed", slog.Any("err", err))
			return mcpservice.Errorf("%s", err.Error()), nil
		}
		return mcpservice.JSONResult(out), nil
	}
}

// decodeArguments keeps numbers as json.Number so wide integers reach the
// coercer intact.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) describe(conn *explorer.Connection) *mcp.CallToolResult {
	c := conn.Classification()
	type method struct {
		Name       string   `json:"name"`
		Mode       string   `json:"mode"`
		Category   string   `json:"category,omitempty"`
		Section    string   `json:"section,omitempty"`
		Parameters []string `json:"parameters"`
	}
	cats := make(map[string]methods.Method)
	for _, m := range c.All() {
		cats[m.Name] = m
	}
	var out []method
	for _, sig := range conn.Result().Signatures {
		m := method{Name: sig.Name, Mode: sig.Mode.String(), Parameters: []string{}}
		if cm, ok := cats[sig.Name]; ok {
			m.Category = cm.Category.String()
			m.Section = cm.SectionName
		}
		for _, p := range conn.Requirements().Lookup(sig.Name).Types {
			m.Parameters = append(m.Parameters, p.Name+": "+p.WireType)
		}
		out = append(out, m)
	}
	return mcpservice.JSONResult(map[string]any{
		"endpoint": conn.Endpoint(),
		"encoding": conn.Result().Encoding.String(),
		"methods":  out,
		"excluded": c.Excluded,
	})
}

func (s *Server) load(ctx context.Context, conn *explorer.Connection, privileged bool) *mcp.CallToolResult {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: loadTool})
	res, err := conn.Load(ctx, explorer.Privileged(privileged))
	if err != nil {
		s.log.InfoContext(ctx, "querytool.load_failed", slog.Any("err", err))
		return mcpservice.Errorf("%s", err.Error())
	}
	skipped := make([]string, len(res.Skipped))
	for i, sk := range res.Skipped {
		skipped[i] = sk.Method + ": " + sk.Reason
	}
	failed := make([]string, len(res.Failed))
	for i, f := range res.Failed {
		failed[i] = f.Method + ": " + f.Reason
	}
	return mcpservice.JSONResult(map[string]any{
		"data":    res.Data,
		"bulk":    res.Bulk,
		"skipped": skipped,
		"failed":  failed,
	})
}

func (s *Server) jsonResource(get func(*explorer.Connection) any) mcpservice.ResourceReader {
	return func(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
		b, err := json.MarshalIndent(get(s.connection()), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("querytool: encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{{URI: uri, MimeType: "application/json", Text: string(b)}}, nil
	}
}

package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/ggoodman/candid-explorer-go/mcp"
)

const defaultPageSize = 50

// ToolHandler handles one tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// TypedTool builds a tool whose arguments decode into A. The input schema
// is reflected from A; unknown fields are rejected.
func TypedTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) StaticTool {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(new(A))
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil || s.Type != "object" {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return StaticTool{
		Descriptor: mcp.Tool{Name: name, Description: description, InputSchema: raw},
		Handler: func(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
			var a A
			if len(req.Arguments) > 0 && !bytes.Equal(req.Arguments, []byte("null")) {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
			return fn(ctx, a)
		},
	}
}

// TextResult builds a successful single-text result.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// Errorf builds a result with IsError set.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}}, IsError: true}
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Errorf("encode result: %v", err)
	}
	return TextResult(strings.TrimSpace(string(b)))
}

// ToolsContainer is a threadsafe, replaceable set of tools. Changes are
// signalled through Subscriber.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
	pageSize int

	notifier ChangeNotifier
}

// NewToolsContainer builds a container holding defs.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{pageSize: defaultPageSize}
	tc.set(defs)
	return tc
}

// SetPageSize sets the ListTools page size. Non-positive values are ignored.
func (tc *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	tc.mu.Lock()
	tc.pageSize = n
	tc.mu.Unlock()
}

// Snapshot returns a copy of the current descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// Replace swaps the whole tool set and notifies subscribers.
func (tc *ToolsContainer) Replace(defs ...StaticTool) {
	tc.set(defs)
	tc.notifier.Notify()
}

func (tc *ToolsContainer) set(defs []StaticTool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tools = make([]mcp.Tool, 0, len(defs))
	tc.handlers = make(map[string]ToolHandler, len(defs))
	for _, d := range defs {
		// later duplicates win the handler but keep the first slot
		if _, dup := tc.handlers[d.Descriptor.Name]; !dup {
			tc.tools = append(tc.tools, d.Descriptor)
		}
		tc.handlers[d.Descriptor.Name] = d.Handler
	}
}

// Add registers def unless its name is taken.
func (tc *ToolsContainer) Add(def StaticTool) bool {
	tc.mu.Lock()
	if _, exists := tc.handlers[def.Descriptor.Name]; exists {
		tc.mu.Unlock()
		return false
	}
	tc.tools = append(tc.tools, def.Descriptor)
	tc.handlers[def.Descriptor.Name] = def.Handler
	tc.mu.Unlock()
	tc.notifier.Notify()
	return true
}

// Remove drops the named tool.
func (tc *ToolsContainer) Remove(name string) bool {
	tc.mu.Lock()
	if _, exists := tc.handlers[name]; !exists {
		tc.mu.Unlock()
		return false
	}
	delete(tc.handlers, name)
	n := 0
	for _, t := range tc.tools {
		if t.Name != name {
			tc.tools[n] = t
			n++
		}
	}
	tc.tools = tc.tools[:n]
	tc.mu.Unlock()
	tc.notifier.Notify()
	return true
}

// Subscriber implements ChangeSubscriber.
func (tc *ToolsContainer) Subscriber() <-chan struct{} {
	return tc.notifier.Subscriber()
}

// Close releases subscribers.
func (tc *ToolsContainer) Close() {
	tc.notifier.Close()
}

// ListTools implements ToolsCapability.
func (tc *ToolsContainer) ListTools(_ context.Context, cursor *string) (Page[mcp.Tool], error) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return paginate(tc.tools, cursor, tc.pageSize), nil
}

// CallTool implements ToolsCapability.
func (tc *ToolsContainer) CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrToolNotFound)
	}
	tc.mu.RLock()
	h := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return h(ctx, req)
}

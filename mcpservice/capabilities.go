package mcpservice

import (
	"context"
	"errors"

	"github.com/ggoodman/candid-explorer-go/mcp"
)

var (
	// ErrToolNotFound is returned by CallTool for an unknown tool name.
	ErrToolNotFound = errors.New("mcpservice: tool not found")
	// ErrResourceNotFound is returned by ReadResource for an unknown URI.
	ErrResourceNotFound = errors.New("mcpservice: resource not found")
)

// ServerCapabilities is what a transport asks of a server during and after
// the initialize handshake. Implementations must be safe for concurrent use.
type ServerCapabilities interface {
	GetServerInfo(ctx context.Context) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion returns the version to offer when the
	// client asks for one the server does not speak. ok=false means the
	// latest supported version.
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)

	GetInstructions(ctx context.Context) (instructions string, ok bool, err error)

	GetToolsCapability(ctx context.Context) (cap ToolsCapability, ok bool, err error)
	GetResourcesCapability(ctx context.Context) (cap ResourcesCapability, ok bool, err error)
}

// ToolsCapability lists and invokes tools.
type ToolsCapability interface {
	// ListTools returns one page of tools; a nil cursor requests the first.
	ListTools(ctx context.Context, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a tool. Tool-level failures are returned as results
	// with IsError set; a non-nil error means the call could not be routed.
	CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// ResourcesCapability lists and reads resources.
type ResourcesCapability interface {
	ListResources(ctx context.Context, cursor *string) (Page[mcp.Resource], error)
	ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}

// ChangeSubscriber is implemented by capabilities whose listing can change.
// Transports use it to emit list_changed notifications.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}

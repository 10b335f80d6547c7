package mcpservice

import (
	"context"

	"github.com/ggoodman/candid-explorer-go/mcp"
)

// ServerOption configures NewServer.
type ServerOption func(*server)

type server struct {
	info            mcp.ImplementationInfo
	protocolVersion string
	instructions    string
	tools           ToolsCapability
	resources       ResourcesCapability
}

// NewServer builds a ServerCapabilities from static parts.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithPreferredProtocolVersion sets the version offered to clients that ask
// for an unsupported one.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *server) { s.protocolVersion = version }
}

// WithInstructions sets human-readable usage notes returned from initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = instr }
}

// WithToolsCapability wires the tools capability.
func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.tools = cap }
}

// WithResourcesCapability wires the resources capability.
func WithResourcesCapability(cap ResourcesCapability) ServerOption {
	return func(s *server) { s.resources = cap }
}

func (s *server) GetServerInfo(context.Context) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

func (s *server) GetPreferredProtocolVersion(context.Context) (string, bool, error) {
	return s.protocolVersion, s.protocolVersion != "", nil
}

func (s *server) GetInstructions(context.Context) (string, bool, error) {
	return s.instructions, s.instructions != "", nil
}

func (s *server) GetToolsCapability(context.Context) (ToolsCapability, bool, error) {
	return s.tools, s.tools != nil, nil
}

func (s *server) GetResourcesCapability(context.Context) (ResourcesCapability, bool, error) {
	return s.resources, s.resources != nil, nil
}

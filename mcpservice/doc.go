// Package mcpservice provides the capability interfaces a Model Context
// Protocol transport dispatches to, plus containers for tools and resources
// whose contents can change while a client is connected.
//
// Quick start:
//
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.TypedTool[EchoArgs]("echo", "Echo a message",
//	        func(ctx context.Context, a EchoArgs) (*mcp.CallToolResult, error) {
//	            return mcpservice.TextResult(a.Message), nil
//	        }),
//	)
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// Capability discovery methods return (cap, ok, err). A false ok means the
// capability is not offered; err is reserved for internal failures.
package mcpservice

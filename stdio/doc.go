// Package stdio serves an mcpservice.ServerCapabilities to a single client
// over newline-delimited JSON-RPC on stdin and stdout.
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON-RPC message per line
//	Concurrency      : requests after initialize run concurrently
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "candid-explorer", Version: "dev"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//	if err := stdio.NewHandler(srv).Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
package stdio

// Package mcp holds the Model Context Protocol wire types the explorer's
// tool server speaks: capability negotiation, tools and resources. Types
// are plain structs with json tags; framing lives in the stdio package.
//
// # Method Names
//
// JSON-RPC method and notification names are Method constants such as
// ToolsCallMethod.
//
// # Pagination
//
// List operations embed PaginatedRequest and PaginatedResult; cursors are
// opaque to clients.
package mcp

// Package mcp exposes the progress store and retrieval views as MCP tools
// over stdio, using github.com/modelcontextprotocol/go-sdk/mcp.
//
// Tools:
//   - search_progress: similarity search over a user's tracked items
//   - mutate_progress: create, update or complete a tracked item
//   - get_view: one aggregated view of a user's ingested profile
package mcp

// Package dispatch exposes a remote desktop session as MCP tools.
//
// Tool handlers run on the server's own goroutines. Screenshots are PNG
// encoded on the managed worker pool, so handlers must be called with a
// context that carries a managed execution context.
package dispatch

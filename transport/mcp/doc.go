// Package mcp exposes the session relay to AI agents over the Model Context
// Protocol (github.com/mark3labs/mcp-go).
//
// The server holds no state of its own. Every tool is answered by calling
// the relay's REST API, so the same Client works in-process, against a
// remote relay, or behind stdio.
//
// MCP Tools:
//   - session_state: players, entities, authority and connection count
//   - list_players / get_player
//   - list_entities / get_entity
//   - authority: the connection allowed to mutate entities
//   - relay_metrics: relay counters
//
// Transport Modes:
//   - HTTP: Client implements http.Handler; mount it at /mcp
//   - Stdio: server.ServeStdio(client.GetMCPServer())
package mcp

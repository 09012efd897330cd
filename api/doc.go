// Package api provides the HTTP surface of the session relay.
//
// All relay mutations travel as WebSocket frames; the REST endpoints here
// only read. The same router also mounts the WebSocket endpoint, the MCP
// endpoint and the static client files, so one port serves everything.
//
// Endpoints:
//   - GET /api/session - players, entities, authority and connection count
//   - GET /api/players - players sorted by id
//   - GET /api/players/{id} - one player
//   - GET /api/entities - entities sorted by id
//   - GET /api/entities/{id} - one entity
//   - GET /api/authority - the connection allowed to mutate entities
//   - GET /api/metrics - relay counters plus session sizes
//   - GET /healthz - liveness
//   - /ws - WebSocket upgrade
//   - /mcp - MCP over streamable HTTP
//   - / - static files
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status code; unknown players and
// entities map to 404:
//
//	{"error": "entity not found"}
//
// Usage:
//
//	server := api.NewServer(relay, api.Options{
//		WebSocket: http.HandlerFunc(hub.ServeWS),
//		StaticDir: cfg.StaticDir,
//		Logger:    logger,
//	})
//	http.ListenAndServe(cfg.Addr(), server)
package api

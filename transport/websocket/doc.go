// Package websocket is the WebSocket transport for the session relay.
//
// Each accepted socket becomes a Client with two goroutines. The read pump
// feeds frames to the relay (optionally through a per-connection
// golang.org/x/time/rate limiter) and disconnects the client when the socket
// ends. The write pump drains a bounded send queue, one WebSocket message per
// frame, and pings the peer so dead sockets are noticed within PongWait.
//
// Lifecycle:
//
//	CONNECTING  socket upgraded, relay admitting it and queuing the welcome
//	OPEN        frames flow both ways
//	CLOSED      send queue closed; further sends are refused
//
// Sends never block. A client whose queue is full misses that frame.
//
// Usage:
//
//	hub := websocket.NewHub(relay, relay.Metrics(), cfg, logger)
//	router.HandleFunc("/ws", hub.ServeWS)
package websocket

// Package service provides the relay core: admission, routing and fan-out.
//
// The service package implements:
//   - Connection lifecycle (welcome on open, teardown on close)
//   - Message routing for player and entity frames
//   - Authority gating of entity mutations
//   - Username admission policy
//   - Best-effort fan-out of every change to all live connections
//
// Core Types:
//
// RelayService is the interface transports and inspection surfaces depend
// on. Relay implements it over a state.Store, a registry.Registry and an
// authority.Tracker.
//
// Architecture:
//
// The service layer sits between the transports (WebSocket, REST, MCP) and
// the session state. Transports hand it a registry.Peer per connection and
// feed it raw frames; the relay never blocks on a peer, so a slow client
// can only lose its own frames.
//
// Usage:
//
//	relay := service.NewRelay(logger, metrics.New())
//
//	id, err := relay.Connect(peer)
//	if err != nil {
//		return err
//	}
//	defer relay.Disconnect(id)
//
//	relay.HandleFrame(id, []byte(`{"type":"username","username":"alice"}`))
//
// Ordering:
//
// A single sequencing lock spans each store mutation and the queuing of its
// frames, so all peers observe the same order of events.
package service

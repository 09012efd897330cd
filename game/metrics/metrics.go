// Package metrics records relay counters for monitoring and debugging.
package metrics

import "sync/atomic"

// RelayMetrics holds the relay's running counters
type RelayMetrics struct {
	ConnectionsOpened  atomic.Int64 // connections that reached OPEN
	ConnectionsClosed  atomic.Int64 // connections torn down
	FramesHandled      atomic.Int64 // inbound frames that parsed and were routed
	FramesMalformed    atomic.Int64 // inbound frames that failed to parse
	FramesUnknown      atomic.Int64 // well-formed frames with an unhandled type
	FramesRateLimited  atomic.Int64 // inbound frames dropped by the per-connection limiter
	UnauthorizedDrops  atomic.Int64 // entity mutations from a non-authority sender
	AdmissionRejected  atomic.Int64 // connections closed for joining without a name
	AuthorityElections atomic.Int64 // authority handed to a new connection after a disconnect
	FramesSent         atomic.Int64 // frames queued to a peer
	SendsDropped       atomic.Int64 // frames a peer could not accept
}

// New creates zeroed metrics
func New() *RelayMetrics {
	return &RelayMetrics{}
}

// Snapshot returns a read-only copy suitable for JSON output
func (m *RelayMetrics) Snapshot() map[string]any {
	return map[string]any{
		"connections_opened":  m.ConnectionsOpened.Load(),
		"connections_closed":  m.ConnectionsClosed.Load(),
		"frames_handled":      m.FramesHandled.Load(),
		"frames_malformed":    m.FramesMalformed.Load(),
		"frames_unknown":      m.FramesUnknown.Load(),
		"frames_rate_limited": m.FramesRateLimited.Load(),
		"unauthorized_drops":  m.UnauthorizedDrops.Load(),
		"admission_rejected":  m.AdmissionRejected.Load(),
		"authority_elections": m.AuthorityElections.Load(),
		"frames_sent":         m.FramesSent.Load(),
		"sends_dropped":       m.SendsDropped.Load(),
	}
}

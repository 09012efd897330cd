package service

import (
	"context"

	"github.com/wricardo/sessionrelay/game/registry"
	"github.com/wricardo/sessionrelay/game/state"
)

// RelayService defines the connection lifecycle and read-side operations
type RelayService interface {
	// Lifecycle
	Connect(peer registry.Peer) (string, error)
	HandleFrame(connID string, frame []byte)
	Disconnect(connID string)

	// Inspection
	Snapshot(ctx context.Context) (*SessionView, error)
	Player(ctx context.Context, playerID string) (*state.PlayerState, error)
	Entity(ctx context.Context, entityID string) (*state.EntityState, error)
	Authority(ctx context.Context) (*AuthorityInfo, error)
	Stats(ctx context.Context) (map[string]any, error)
}

// SessionView is the read-only view served to inspection clients
type SessionView struct {
	Players     map[string]state.PlayerState `json:"players"`
	Entities    map[string]state.EntityState `json:"entities"`
	Authority   string                       `json:"authority,omitempty"`
	Connections int                          `json:"connections"`
}

// AuthorityInfo names the connection currently allowed to mutate entities
type AuthorityInfo struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Held         bool   `json:"held"`
}

package protocol

import (
	"encoding/json"

	"github.com/wricardo/sessionrelay/game/state"
)

// Outbound message types
const (
	TypeWelcome      = "welcome"
	TypeSync         = "sync"
	TypeJoinLeave    = "join_leave"
	TypeEntityUpdate = "entity_update"
	TypeEntityDelete = "entity_delete"
	TypeError        = "error"
)

// Join/leave actions
const (
	ActionJoined = "joined"
	ActionLeft   = "left"
)

// UsernameRequired is the error text sent when a connection tries to join
// without a name
const UsernameRequired = "You must provide a username to join."

// Welcome is sent once to a connection right after it opens
type Welcome struct {
	Type          string                       `json:"type"`
	PlayerID      string                       `json:"playerID"`
	Players       map[string]state.PlayerState `json:"players"`
	Entities      map[string]state.EntityState `json:"entities"`
	IsFirstPlayer bool                         `json:"isFirstPlayer"`
}

// Sync carries the full player map
type Sync struct {
	Type    string                       `json:"type"`
	Players map[string]state.PlayerState `json:"players"`
}

// JoinLeave announces a named player arriving or leaving
type JoinLeave struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerID"`
	Action   string `json:"action"`
	Username string `json:"username"`
}

// EntityUpdate carries the full state of a created or changed entity
type EntityUpdate struct {
	Type   string            `json:"type"`
	Entity state.EntityState `json:"entity"`
}

// EntityDelete names a removed entity
type EntityDelete struct {
	Type     string `json:"type"`
	EntityID string `json:"entityID"`
}

// Error reports a problem to a client
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewWelcome builds the welcome frame for playerID
func NewWelcome(playerID string, snap state.Snapshot, isFirst bool) Welcome {
	return Welcome{
		Type:          TypeWelcome,
		PlayerID:      playerID,
		Players:       snap.Players,
		Entities:      snap.Entities,
		IsFirstPlayer: isFirst,
	}
}

// NewSync builds a full player sync frame
func NewSync(players map[string]state.PlayerState) Sync {
	return Sync{Type: TypeSync, Players: players}
}

// NewJoinLeave builds a join or leave announcement
func NewJoinLeave(playerID, action, username string) JoinLeave {
	return JoinLeave{Type: TypeJoinLeave, PlayerID: playerID, Action: action, Username: username}
}

// NewEntityUpdate builds an entity_update frame
func NewEntityUpdate(e state.EntityState) EntityUpdate {
	return EntityUpdate{Type: TypeEntityUpdate, Entity: e}
}

// NewEntityDelete builds an entity_delete frame
func NewEntityDelete(id string) EntityDelete {
	return EntityDelete{Type: TypeEntityDelete, EntityID: id}
}

// NewError builds an error frame
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// Encode marshals an outbound frame
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Package protocol defines the JSON text frames exchanged with clients.
//
// Every frame is a single JSON object with a "type" tag. Parse turns an
// inbound frame into one of the typed messages below or reports why it
// could not; the outbound constructors build the frames the relay sends.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/sessionrelay/game/state"
)

// Inbound message types
const (
	TypeUsername     = "username"
	TypeUpdate       = "update"
	TypeCreateEntity = "create_entity"
	TypeUpdateEntity = "update_entity"
	TypeDeleteEntity = "delete_entity"
)

var (
	// ErrUnknownType is returned for well-formed frames whose type the relay
	// does not handle. Such frames are ignored.
	ErrUnknownType = errors.New("unknown message type")
)

// ParseError describes a frame that could not be decoded into the structure
// its type requires
type ParseError struct {
	Type   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "malformed message"
	if e.Type != "" {
		msg += " " + e.Type
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Message is any decoded inbound frame
type Message interface {
	MessageType() string
}

// Username announces the sender's display name
type Username struct {
	Username string
}

// Update moves a player
type Update struct {
	PlayerID string
	Position state.Vec3
	Rotation float64
}

// CreateEntity asks the relay to allocate a new entity
type CreateEntity struct {
	Data state.EntityPatch
}

// UpdateEntity merges fields into an existing entity
type UpdateEntity struct {
	EntityID string
	Data     state.EntityPatch
}

// DeleteEntity removes an entity
type DeleteEntity struct {
	EntityID string
}

func (Username) MessageType() string     { return TypeUsername }
func (Update) MessageType() string       { return TypeUpdate }
func (CreateEntity) MessageType() string { return TypeCreateEntity }
func (UpdateEntity) MessageType() string { return TypeUpdateEntity }
func (DeleteEntity) MessageType() string { return TypeDeleteEntity }

// envelope is the union of every inbound field
type envelope struct {
	Type     string          `json:"type"`
	Username *string         `json:"username"`
	PlayerID string          `json:"playerID"`
	EntityID string          `json:"entityID"`
	Data     json.RawMessage `json:"data"`
}

type playerData struct {
	Position *state.Vec3 `json:"position"`
	Rotation *float64    `json:"rotation"`
}

type entityData struct {
	Position *state.Vec3    `json:"position"`
	Rotation *float64       `json:"rotation"`
	Model    json.RawMessage `json:"model"`
}

// Parse decodes one inbound frame
func Parse(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}

	switch env.Type {
	case TypeUsername:
		if env.Username == nil {
			return nil, missing(env.Type, "username")
		}
		return Username{Username: *env.Username}, nil

	case TypeUpdate:
		if env.PlayerID == "" {
			return nil, missing(env.Type, "playerID")
		}
		var data playerData
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		if data.Position == nil {
			return nil, missing(env.Type, "data.position")
		}
		if data.Rotation == nil {
			return nil, missing(env.Type, "data.rotation")
		}
		return Update{PlayerID: env.PlayerID, Position: *data.Position, Rotation: *data.Rotation}, nil

	case TypeCreateEntity:
		var data entityData
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return CreateEntity{Data: data.patch()}, nil

	case TypeUpdateEntity:
		if env.EntityID == "" {
			return nil, missing(env.Type, "entityID")
		}
		var data entityData
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return UpdateEntity{EntityID: env.EntityID, Data: data.patch()}, nil

	case TypeDeleteEntity:
		if env.EntityID == "" {
			return nil, missing(env.Type, "entityID")
		}
		return DeleteEntity{EntityID: env.EntityID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData(env envelope, dst any) error {
	raw := strings.TrimSpace(string(env.Data))
	if raw == "" || raw == "null" {
		return missing(env.Type, "data")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &ParseError{Type: env.Type, Reason: "invalid data", Err: err}
	}
	return nil
}

func missing(msgType, field string) error {
	return &ParseError{Type: msgType, Reason: "missing " + field}
}

func (d entityData) patch() state.EntityPatch {
	p := state.EntityPatch{Position: d.Position, Rotation: d.Rotation}
	// An explicit null model is treated as absent
	if len(d.Model) > 0 && string(d.Model) != "null" {
		p.Model = d.Model
	}
	return p
}

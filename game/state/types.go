package state

import (
	"bytes"
	"encoding/json"
)

// Vec3 is a position in session space
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerState is the per-connection record broadcast to every peer
type PlayerState struct {
	Position Vec3    `json:"position"`
	Rotation float64 `json:"rotation"`
	Username string  `json:"username"`
}

// EntityState is a session object owned by no single connection.
// Model is passed through untouched; the relay never interprets it.
type EntityState struct {
	ID       string          `json:"id"`
	Position Vec3            `json:"position"`
	Rotation float64         `json:"rotation"`
	Model    json.RawMessage `json:"model,omitempty"`
}

// EntityPatch carries the fields present in a create or update payload.
// A nil field was absent from the payload and is left as-is on merge.
type EntityPatch struct {
	Position *Vec3
	Rotation *float64
	Model    json.RawMessage
}

// Snapshot is a copied view of the whole session at one instant
type Snapshot struct {
	Players  map[string]PlayerState `json:"players"`
	Entities map[string]EntityState `json:"entities"`
}

// apply merges the patch into e
func (p EntityPatch) apply(e *EntityState) {
	if p.Position != nil {
		e.Position = *p.Position
	}
	if p.Rotation != nil {
		e.Rotation = *p.Rotation
	}
	if p.Model != nil {
		e.Model = cloneRaw(p.Model)
	}
}

func (e EntityState) clone() EntityState {
	e.Model = cloneRaw(e.Model)
	return e
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return json.RawMessage(bytes.Clone(raw))
}

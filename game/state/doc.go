// Package state holds the shared session state for the relay.
//
// The state package implements:
//   - Per-connection player records (position, rotation, username)
//   - Authority-owned entities with monotonically allocated ids
//   - Shallow-merge updates that preserve absent fields
//   - Point-in-time snapshots that never alias the live maps
//
// Core Types:
//
// Store is the single owner of mutable session state. PlayerState and
// EntityState are the records it holds; EntityPatch describes a partial
// entity update where nil fields mean "leave unchanged".
//
// Concurrency:
//
// Every Store method takes the same mutex, so a merge can never interleave
// with a concurrent delete of the same entity and a Snapshot always sees a
// consistent view. Callers only ever receive copies.
//
// Usage:
//
//	store := state.NewStore()
//	store.AddPlayer("abc")
//	first := store.SetUsername("abc", "alice")
//
//	ent := store.CreateEntity(state.EntityPatch{Model: json.RawMessage(`"box"`)})
//	store.UpdateEntity(ent.ID, state.EntityPatch{Rotation: &rot})
//
//	snap := store.Snapshot()
package state

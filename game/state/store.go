package state

import (
	"fmt"
	"sync"
)

// EntityIDPrefix prefixes every allocated entity id
const EntityIDPrefix = "entity_"

// Store is the single owner of player and entity state
type Store struct {
	mu       sync.Mutex
	players  map[string]*PlayerState
	entities map[string]*EntityState
	nextID   uint64
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		players:  make(map[string]*PlayerState),
		entities: make(map[string]*EntityState),
	}
}

// AddPlayer inserts a zeroed player record; no-op if one already exists
func (s *Store) AddPlayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[id]; exists {
		return
	}
	s.players[id] = &PlayerState{}
}

// RemovePlayer deletes the player and reports whether it existed
func (s *Store) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[id]; !exists {
		return false
	}
	delete(s.players, id)
	return true
}

// Player returns a copy of the player's record
func (s *Store) Player(id string) (PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[id]
	if !exists {
		return PlayerState{}, false
	}
	return *p, true
}

// SetUsername stores name for the player. It returns true only when this
// call is the first to give the player a non-empty username. Unknown ids
// are ignored.
func (s *Store) SetUsername(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[id]
	if !exists {
		return false
	}
	first := p.Username == "" && name != ""
	if name != "" {
		p.Username = name
	}
	return first
}

// UpdatePlayer overwrites position and rotation. An update for an id with
// no record creates one with an empty username, since movement frames can
// arrive before the connection announces itself.
func (s *Store) UpdatePlayer(id string, position Vec3, rotation float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[id]
	if !exists {
		p = &PlayerState{}
		s.players[id] = p
	}
	p.Position = position
	p.Rotation = rotation
}

// CreateEntity allocates the next entity id and stores the entity
func (s *Store) CreateEntity(data EntityPatch) EntityState {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("%s%d", EntityIDPrefix, s.nextID)
	s.nextID++

	e := &EntityState{ID: id}
	data.apply(e)
	s.entities[id] = e
	return e.clone()
}

// UpdateEntity merges patch into an existing entity and returns the result.
// Unknown ids are a no-op.
func (s *Store) UpdateEntity(id string, patch EntityPatch) (EntityState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return EntityState{}, false
	}
	patch.apply(e)
	return e.clone(), true
}

// DeleteEntity removes an entity and reports whether it existed.
// The id is never handed out again.
func (s *Store) DeleteEntity(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[id]; !exists {
		return false
	}
	delete(s.entities, id)
	return true
}

// Entity returns a copy of a single entity
func (s *Store) Entity(id string) (EntityState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return EntityState{}, false
	}
	return e.clone(), true
}

// Players returns a copy of the player map
func (s *Store) Players() map[string]PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyPlayers()
}

// Snapshot returns a consistent copy of players and entities
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := make(map[string]EntityState, len(s.entities))
	for id, e := range s.entities {
		entities[id] = e.clone()
	}
	return Snapshot{
		Players:  s.copyPlayers(),
		Entities: entities,
	}
}

// Counts returns the number of players and entities
func (s *Store) Counts() (players, entities int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players), len(s.entities)
}

func (s *Store) copyPlayers() map[string]PlayerState {
	players := make(map[string]PlayerState, len(s.players))
	for id, p := range s.players {
		players[id] = *p
	}
	return players
}

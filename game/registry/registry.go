// Package registry tracks live connections and issues their identifiers.
//
// Ids are 32 lowercase hex characters drawn from a random UUID, unique for
// the lifetime of the process. The registry keeps connections in the order
// they registered so ListLive and Peers are stable between calls.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Peer is the sending half of a live connection
type Peer interface {
	// Send queues data for delivery without blocking. It returns false when
	// the frame was dropped because the peer is closed or backed up; the
	// relay then closes the peer.
	Send(data []byte) bool
	// Close ends the connection. Queued frames are flushed first.
	Close()
}

// Entry pairs a connection id with its peer
type Entry struct {
	ID   string
	Peer Peer
}

// Registry holds every live connection
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*member
	seq   uint64
	newID func() string
}

type member struct {
	peer Peer
	seq  uint64
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		peers: make(map[string]*member),
		newID: generateID,
	}
}

// Register tracks peer and returns its new connection id
func (r *Registry) Register(peer Peer) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, taken := r.peers[id]; !taken {
			break
		}
		id = r.newID()
	}

	r.seq++
	r.peers[id] = &member{peer: peer, seq: r.seq}
	return id
}

// Unregister stops tracking id and reports whether it was live
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// Get returns the peer registered under id
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return m.peer, true
}

// ListLive returns the ids of all live connections, oldest first
func (r *Registry) ListLive() []string {
	entries := r.Peers()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Peers returns a copy of the live set, oldest first. The copy is safe to
// iterate while other connections come and go.
func (r *Registry) Peers() []Entry {
	r.mu.RLock()
	type ordered struct {
		Entry
		seq uint64
	}
	list := make([]ordered, 0, len(r.peers))
	for id, m := range r.peers {
		list = append(list, ordered{Entry: Entry{ID: id, Peer: m.peer}, seq: m.seq})
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	entries := make([]Entry, len(list))
	for i, o := range list {
		entries[i] = o.Entry
	}
	return entries
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func generateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Package authority elects the single connection allowed to mutate entities.
package authority

import "sync"

// LiveSet reports the connections currently eligible for authority
type LiveSet interface {
	ListLive() []string
}

// Tracker holds the current authority. While any connection is live it
// names exactly one of them; with no connections it is empty.
type Tracker struct {
	mu      sync.Mutex
	live    LiveSet
	current string
}

// NewTracker creates a tracker that re-elects from live
func NewTracker(live LiveSet) *Tracker {
	return &Tracker{live: live}
}

// OnConnect makes id the authority if nobody holds it
func (t *Tracker) OnConnect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		t.current = id
	}
}

// OnDisconnect clears id if it was the authority and hands authority to
// another live connection, if any. The id must already be gone from the
// live set. Which survivor is chosen is not part of the contract.
func (t *Tracker) OnDisconnect(id string) (successor string, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != id {
		return t.current, false
	}
	t.current = ""
	for _, candidate := range t.live.ListLive() {
		if candidate != id {
			t.current = candidate
			break
		}
	}
	return t.current, true
}

// IsAuthority reports whether id currently holds authority
func (t *Tracker) IsAuthority(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return id != "" && t.current == id
}

// Current returns the authority, if any
func (t *Tracker) Current() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.current != ""
}

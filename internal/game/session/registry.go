package session

import (
	"slices"
	"sync"
	"time"

	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
)

// Session ties a registered player to its outbound queue.
type Session struct {
	// Player is the registered player and its cards.
	Player *bingo.Player
	// Outbox is where frames for this player are pushed.
	Outbox *Outbox
	// JoinedAt is when the player registered.
	JoinedAt time.Time
}

// ID returns the player's connection ID.
func (s *Session) ID() string {
	return s.Player.ID()
}

// Registry tracks registered players in registration order.
// The coordinator goroutine is its only writer; the lock keeps direct use
// from other goroutines, as in tests, race free.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // id → session
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Put registers sess under its player ID, replacing any existing entry.
// A replaced entry keeps its position in the registration order.
//
// Precondition: sess, sess.Player and sess.Outbox must be non-nil.
// Postcondition: Returns the replaced session, or nil if the ID was new.
func (r *Registry) Put(sess *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := sess.ID()
	prev, exists := r.sessions[id]
	r.sessions[id] = sess
	if !exists {
		r.order = append(r.order, id)
	}
	return prev
}

// Remove deletes the session for id.
//
// Postcondition: Returns (session, true) if it was registered, or (nil, false) otherwise.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	r.order = slices.DeleteFunc(r.order, func(x string) bool { return x == id })
	return sess, true
}

// Get returns the session for id.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Snapshot returns the registered sessions in registration order. The slice
// is a copy; removals after the call do not affect it.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Count returns the number of registered players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

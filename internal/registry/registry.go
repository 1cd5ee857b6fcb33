// Package registry tracks which servers currently have a live session.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/dalnet/rbnc/internal/model"
)

// ErrAlreadyRegistered means a second live session was offered for a server
// that already has one. It is always a caller bug.
var ErrAlreadyRegistered = errors.New("server already has a session")

// Session is a live connection to one IRC network
type Session interface {
	// Open starts connecting. It returns once the connection attempt has been
	// made; the read loop keeps running in the background.
	Open(ctx context.Context) error
	// Join joins channel. An empty password means none.
	Join(channel, password string) error
	SendMessage(target, text string) error
	ChangeNick(nick string) error
	// Close quits the network and stops the session
	Close()
}

// Registry maps server ids to their live session
type Registry struct {
	mu       sync.RWMutex
	sessions map[model.ServerID]Session
}

// New creates an empty registry
func New() *Registry {
	return &Registry{sessions: make(map[model.ServerID]Session)}
}

// Get returns the session for id, if any
func (r *Registry) Get(id model.ServerID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Put registers s under id. It never replaces an existing entry.
func (r *Registry) Put(id model.ServerID, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "server %d", id)
	}
	r.sessions[id] = s
	return nil
}

// Remove retires the entry for id and returns it
func (r *Registry) Remove(id model.ServerID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered server ids in ascending order
func (r *Registry) IDs() []model.ServerID {
	r.mu.RLock()
	ids := make([]model.ServerID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll removes and closes every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[model.ServerID]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

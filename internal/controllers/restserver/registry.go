package restserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chrissnell/fragsize/internal/session"
	"go.uber.org/zap"
)

// Registry holds the sessions served by the API. When a store is set, every change is written
// through to it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	store    *session.Store
	logger   *zap.SugaredLogger
}

// NewRegistry creates an empty registry; store may be nil
func NewRegistry(store *session.Store, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
		store:    store,
		logger:   logger,
	}
}

// Add registers a session and persists it
func (r *Registry) Add(s *session.Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.Persist(s)
}

// Get returns a registered session
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return s, nil
}

// Delete removes a session from the registry and the store
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if r.store != nil {
		if err := r.store.Delete(id); err != nil && !errors.Is(err, session.ErrNotFound) {
			return err
		}
	}
	return nil
}

// List returns the registered sessions, oldest first
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Stored lists the snapshots in the store
func (r *Registry) Stored() ([]session.StoredSession, error) {
	if r.store == nil {
		return []session.StoredSession{}, nil
	}
	return r.store.List()
}

// Persist writes the session's snapshot to the store. Failures are logged; the in-memory
// session stays authoritative.
func (r *Registry) Persist(s *session.Session) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(s); err != nil {
		r.logger.Errorf("could not persist session %s: %v", s.ID, err)
	}
}

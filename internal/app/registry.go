package app

import (
	"context"
	"sync"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *Session
	Cancel  context.CancelFunc
}

// Registry is the table of live sessions of one protocol endpoint.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*sessionEntry),
	}
}

// Bind tracks s; cancel stops its transport pumps and may be nil.
func (r *Registry) Bind(s *Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = &sessionEntry{Session: s, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("conn", string(s.ID())).Str("client", s.Client()).Msg("bound session")
}

func (r *Registry) Get(sid domain.ConnID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Str("conn", string(sid)).Msg("unbind session")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll stops every live session's transport. Cleanup runs on each
// session's own task when its read loop exits.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Session.Signal().Close()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(entries)).Msg("canceled sessions")
	return len(entries)
}

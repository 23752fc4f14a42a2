package app

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is one logical client connection bound to one transport handle.
// It exclusively owns the set of rooms it belongs to; the room side of the
// membership lives in core.Registry and is only changed through here.
type Session struct {
	id     domain.ConnID
	client string
	signal core.SignalConnection

	mu       sync.Mutex
	state    State
	identity domain.Identity
	rooms    map[domain.RoomID]struct{}

	closeOnce sync.Once
}

// NewSession wraps an accepted transport. client is the browser token, kept
// for logs only.
func NewSession(id domain.ConnID, client string, signal core.SignalConnection) *Session {
	return &Session{
		id:     id,
		client: client,
		signal: signal,
		rooms:  make(map[domain.RoomID]struct{}),
	}
}

func (s *Session) ID() domain.ConnID             { return s.id }
func (s *Session) Client() string                { return s.client }
func (s *Session) Signal() core.SignalConnection { return s.signal }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.state == StateIdentified
}

// Rooms returns the joined rooms in a stable order.
func (s *Session) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsLocked()
}

func (s *Session) roomsLocked() []domain.RoomID {
	out := make([]domain.RoomID, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.RoomID) int { return strings.Compare(string(a), string(b)) })
	return out
}

func (s *Session) IsMember(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

func (s *Session) BindIdentity(id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return domain.ErrClosed
	case StateIdentified:
		return domain.ErrAlreadyIdentified
	}
	s.identity = id
	s.state = StateIdentified
	log.Info().Str("module", "app.session").Str("conn", string(s.id)).Str("identity", string(id)).Msg("identity bound")
	return nil
}

// JoinRoom is idempotent: joining a room twice yields the snapshot again
// without a second presence event.
func (s *Session) JoinRoom(reg *core.Registry, room domain.RoomID) (core.JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return core.JoinResult{}, domain.ErrClosed
	case StateUnidentified:
		return core.JoinResult{}, domain.ErrNotIdentified
	}
	res, err := reg.Join(room, core.Member{Conn: s.id, Identity: s.identity, Signal: s.signal})
	if err != nil {
		return core.JoinResult{}, err
	}
	s.rooms[room] = struct{}{}
	return res, nil
}

// LeaveRoom is a no-op when the session is not a member.
func (s *Session) LeaveRoom(reg *core.Registry, room domain.RoomID) core.LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return core.LeaveResult{}
	}
	delete(s.rooms, room)
	return reg.Leave(room, s.id)
}

// Close leaves every joined room and moves to StateClosed. It runs once;
// later calls return nil.
func (s *Session) Close(reg *core.Registry) []domain.PresenceEvent {
	var events []domain.PresenceEvent
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, room := range s.roomsLocked() {
			if res := reg.Leave(room, s.id); res.Event != nil {
				events = append(events, *res.Event)
			}
			delete(s.rooms, room)
		}
		s.state = StateClosed
		log.Info().Str("module", "app.session").Str("conn", string(s.id)).Int("rooms_left", len(events)).Msg("session closed")
	})
	return events
}

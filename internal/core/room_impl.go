package core

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// room is the member set of one room. All mutation happens under mu, so a
// room is its own exclusive section and rooms never contend with each other.
type room struct {
	id     domain.RoomID
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	bySID  map[domain.ConnID]Member
	remote map[domain.Identity]remoteMember
	dead   bool
}

// remoteMember is an identity connected to another node. announced is false
// while it is known only from a sync reply and its joined event has not
// reached local members yet.
type remoteMember struct {
	node      string
	announced bool
}

func newRoom(parent context.Context, id domain.RoomID) *room {
	ctx, cancel := context.WithCancel(parent)
	return &room{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		bySID:  make(map[domain.ConnID]Member),
		remote: make(map[domain.Identity]remoteMember),
	}
}

// add reports false when the connection is already a member.
// Caller holds mu.
func (r *room) add(m Member) bool {
	if _, ok := r.bySID[m.Conn]; ok {
		return false
	}
	r.bySID[m.Conn] = m
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(m.Conn)).Str("identity", string(m.Identity)).Msg("member added")
	return true
}

// holder returns the connection bound to identity. Caller holds mu.
func (r *room) holder(identity domain.Identity) (domain.ConnID, bool) {
	for sid, m := range r.bySID {
		if m.Identity == identity {
			return sid, true
		}
	}
	return "", false
}

// remove marks the room dead when it becomes empty. Caller holds mu.
func (r *room) remove(sid domain.ConnID) (Member, bool) {
	m, ok := r.bySID[sid]
	if !ok {
		return Member{}, false
	}
	delete(r.bySID, sid)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(sid)).Msg("member removed")
	if len(r.bySID) == 0 {
		r.dead = true
		r.cancel()
	}
	return m, true
}

func (r *room) members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.bySID))
	for _, m := range r.bySID {
		out = append(out, m)
	}
	return out
}

// identitiesLocked returns local and remote identities, sorted and unique.
func (r *room) identitiesLocked() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.bySID)+len(r.remote))
	for _, m := range r.bySID {
		out = append(out, m.Identity)
	}
	for id := range r.remote {
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *room) localIdentities() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.bySID))
	for _, m := range r.bySID {
		out = append(out, m.Identity)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *room) info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{Room: r.id, Members: len(r.bySID), Remote: len(r.remote)}
}

package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the single source of truth for room membership in one process.
// mu only guards the room index; member sets are guarded per room.
type Registry struct {
	ctx     context.Context
	watcher RoomWatcher

	mu    sync.RWMutex
	rooms map[domain.RoomID]*room
}

// NewRegistry binds every room lifetime to ctx. watcher may be nil.
func NewRegistry(ctx context.Context, watcher RoomWatcher) *Registry {
	return &Registry{
		ctx:     ctx,
		watcher: watcher,
		rooms:   make(map[domain.RoomID]*room),
	}
}

func (r *Registry) getOrCreate(id domain.RoomID) (*room, bool) {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[id]; ok {
		return rm, false
	}
	rm = newRoom(r.ctx, id)
	r.rooms[id] = rm
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
	return rm, true
}

func (r *Registry) get(id domain.RoomID) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Join adds m to the room, creating it if absent. Joining twice is a no-op
// that still returns the current snapshot. An identity is held by at most
// one local connection per room; a second holder gets ErrIdentityTaken.
func (r *Registry) Join(id domain.RoomID, m Member) (JoinResult, error) {
	for {
		rm, created := r.getOrCreate(id)

		rm.mu.Lock()
		if rm.dead {
			// lost a race with the last leave; the index entry is going away
			rm.mu.Unlock()
			r.forget(rm)
			continue
		}
		var (
			res   JoinResult
			err   error
			added bool
		)
		if holder, taken := rm.holder(m.Identity); taken && holder != m.Conn {
			err = fmt.Errorf("%w: %s in %s", domain.ErrIdentityTaken, m.Identity, id)
		} else {
			added = rm.add(m)
			res = JoinResult{Members: rm.identitiesLocked(), Created: created}
		}
		rm.mu.Unlock()

		if created && r.watcher != nil {
			r.watcher.Watch(rm.ctx, id)
		}
		if err != nil {
			return JoinResult{}, err
		}
		if added {
			res.Event = &domain.PresenceEvent{Room: id, Identity: m.Identity, Kind: domain.PresenceJoined, Conn: m.Conn}
		}
		return res, nil
	}
}

// Leave removes the connection; the room is deleted when it becomes empty.
// Leaving a room that does not exist, or without being a member, is a no-op.
func (r *Registry) Leave(id domain.RoomID, sid domain.ConnID) LeaveResult {
	rm, ok := r.get(id)
	if !ok {
		return LeaveResult{}
	}

	rm.mu.Lock()
	m, ok := rm.remove(sid)
	dead := rm.dead
	rm.mu.Unlock()
	if !ok {
		return LeaveResult{}
	}

	if dead {
		r.forget(rm)
		log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room removed")
	}
	return LeaveResult{
		Event:   &domain.PresenceEvent{Room: id, Identity: m.Identity, Kind: domain.PresenceLeft, Conn: sid},
		Removed: dead,
	}
}

func (r *Registry) forget(rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[rm.id]; ok && cur == rm {
		delete(r.rooms, rm.id)
	}
}

// MembersOf returns a snapshot of the local members only.
func (r *Registry) MembersOf(id domain.RoomID) []Member {
	rm, ok := r.get(id)
	if !ok {
		return nil
	}
	return rm.members()
}

// LocalIdentities returns the identities connected to this process in the room.
func (r *Registry) LocalIdentities(id domain.RoomID) []domain.Identity {
	rm, ok := r.get(id)
	if !ok {
		return nil
	}
	return rm.localIdentities()
}

func (r *Registry) Exists(id domain.RoomID) bool {
	_, ok := r.get(id)
	return ok
}

// Lookup resolves identity inside a room: local members first, then the
// node that announced it over the bus.
func (r *Registry) Lookup(id domain.RoomID, identity domain.Identity) (locals []Member, node string, found bool) {
	rm, ok := r.get(id)
	if !ok {
		return nil, "", false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, m := range rm.bySID {
		if m.Identity == identity {
			locals = append(locals, m)
		}
	}
	rem, remote := rm.remote[identity]
	return locals, rem.node, len(locals) > 0 || remote
}

// ApplyRemote records a presence transition that happened on another node.
// It reports whether local members should hear about it: a joined identity
// is announced once, even when a sync reply put it in the shadow first.
func (r *Registry) ApplyRemote(ev domain.PresenceEvent, node string) bool {
	rm, ok := r.get(ev.Room)
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.dead {
		return false
	}
	cur, known := rm.remote[ev.Identity]
	switch ev.Kind {
	case domain.PresenceJoined:
		if known && cur.node == node && cur.announced {
			return false
		}
		rm.remote[ev.Identity] = remoteMember{node: node, announced: true}
		return true
	case domain.PresenceLeft:
		if !known || cur.node != node {
			return false
		}
		delete(rm.remote, ev.Identity)
		return true
	}
	return false
}

// SyncRemote merges the identities a node reported for a room and returns
// the ones that were not known yet.
func (r *Registry) SyncRemote(id domain.RoomID, node string, identities []domain.Identity) []domain.Identity {
	rm, ok := r.get(id)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.dead {
		return nil
	}
	var added []domain.Identity
	for _, identity := range identities {
		if _, ok := rm.remote[identity]; ok {
			continue
		}
		rm.remote[identity] = remoteMember{node: node}
		added = append(added, identity)
	}
	return added
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, rm.info())
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(string(a.Room), string(b.Room)) })
	return out
}

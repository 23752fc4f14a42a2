package core

import (
	"context"

	"github.com/dkeye/roomrelay/internal/domain"
)

// Member is a local connection inside a room, tagged with its identity.
type Member struct {
	Conn     domain.ConnID
	Identity domain.Identity
	Signal   SignalConnection
}

// RoomWatcher is started once per local room lifetime. ctx is cancelled when
// the room loses its last local member. Watch must not block.
type RoomWatcher interface {
	Watch(ctx context.Context, room domain.RoomID)
}

// JoinResult is the presence snapshot after a join. Event is nil when the
// connection was already a member.
type JoinResult struct {
	Members []domain.Identity
	Event   *domain.PresenceEvent
	Created bool
}

// LeaveResult has a nil Event when the connection was not a member.
type LeaveResult struct {
	Event   *domain.PresenceEvent
	Removed bool
}

type RoomInfo struct {
	Room    domain.RoomID `json:"room"`
	Members int           `json:"members"`
	Remote  int           `json:"remote"`
}

package domain

import "strings"

// RoomID is supplied by clients; there is no creation step.
type RoomID string

func NewRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingRoom
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrInvalidRoom
	}
	return RoomID(raw), nil
}

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent is produced once per membership transition. It is never stored.
type PresenceEvent struct {
	Room     RoomID
	Identity Identity
	Kind     PresenceKind
	Conn     ConnID
}

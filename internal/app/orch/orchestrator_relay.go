package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/roomrelay/internal/app"
	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
)

// resolveRoom picks the room a relayed message is scoped to. Without an
// explicit room the sender must belong to exactly one.
func (o *Orchestrator) resolveRoom(s *app.Session, raw string) (domain.RoomID, error) {
	if raw != "" {
		room, err := domain.NewRoomID(raw)
		if err != nil {
			return "", err
		}
		if !s.IsMember(room) {
			return "", fmt.Errorf("%w: %s", domain.ErrNotInRoom, room)
		}
		return room, nil
	}
	rooms := s.Rooms()
	switch len(rooms) {
	case 0:
		return "", domain.ErrNotInRoom
	case 1:
		return rooms[0], nil
	}
	return "", fmt.Errorf("%w: member of %d rooms", domain.ErrMissingRoom, len(rooms))
}

// broadcast delivers to every other local member and publishes for the
// members connected elsewhere. The sender never gets its own message back.
func (o *Orchestrator) broadcast(ctx context.Context, s *app.Session, env domain.Envelope) error {
	room, err := o.resolveRoom(s, env.Room)
	if err != nil {
		return err
	}
	id, _ := s.Identity()

	out := domain.NewOutbound(env.Type)
	out.Room = room
	out.Payload = env.Payload
	o.Proto.IdentifySource(&out, id)
	frame, err := encode(out)
	if err != nil {
		return err
	}

	o.deliver(room, o.Rooms.MembersOf(room), frame, s.ID())
	o.publish(ctx, busEvent{Kind: kindMessage, Room: room, Frame: json.RawMessage(frame)})
	return nil
}

// relay sends a negotiation message to exactly one identity of the room.
func (o *Orchestrator) relay(ctx context.Context, s *app.Session, env domain.Envelope) error {
	room, err := o.resolveRoom(s, env.Room)
	if err != nil {
		return err
	}
	target, err := domain.NewIdentity(env.Field(o.Proto.TargetKey))
	if err != nil {
		return fmt.Errorf("%w: %s is required", domain.ErrMissingTarget, o.Proto.TargetKey)
	}

	locals, node, _ := o.Rooms.Lookup(room, target)
	recipients := make([]core.Member, 0, len(locals))
	for _, m := range locals {
		if m.Conn != s.ID() {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 && node == "" {
		return fmt.Errorf("%w: %s", domain.ErrPeerNotFound, target)
	}

	id, _ := s.Identity()
	out := domain.NewOutbound(env.Type)
	out.Room = room
	out.Payload = env.Payload
	o.Proto.IdentifySource(&out, id)
	frame, err := encode(out)
	if err != nil {
		return err
	}

	if len(recipients) > 0 {
		o.deliver(room, recipients, frame, "")
		return nil
	}
	o.publish(ctx, busEvent{Kind: kindRelay, Room: room, Target: target, Frame: json.RawMessage(frame)})
	return nil
}

package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/roomrelay/internal/app"
	"github.com/dkeye/roomrelay/internal/app/protocol"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) control(ctx context.Context, s *app.Session, action protocol.Action, env domain.Envelope) error {
	switch action {
	case protocol.ActionBind:
		return o.bind(s, env)
	case protocol.ActionJoin:
		room, err := domain.NewRoomID(env.Room)
		if err != nil {
			return err
		}
		return o.join(ctx, s, room)
	case protocol.ActionBindJoin:
		return o.bindJoin(ctx, s, env)
	case protocol.ActionLeave:
		return o.leave(ctx, s, env)
	case protocol.ActionDisconnect:
		o.Disconnect(s)
		s.Signal().Close()
		return nil
	case protocol.ActionPing:
		o.reply(s, domain.NewOutbound(o.Proto.Events.Pong))
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownType, env.Type)
}

func (o *Orchestrator) bind(s *app.Session, env domain.Envelope) error {
	id, err := domain.NewIdentity(env.Field(o.Proto.IdentityKey))
	if err != nil {
		return fmt.Errorf("%s: %w", o.Proto.IdentityKey, err)
	}
	if err := s.BindIdentity(id); err != nil {
		return err
	}
	if o.Proto.Events.BindReply != "" {
		out := domain.NewOutbound(o.Proto.Events.BindReply)
		out.Status = "success"
		o.Proto.Identify(&out, id)
		o.reply(s, out)
	}
	return nil
}

// bindJoin binds the identity on first use; later joins must carry the same one.
func (o *Orchestrator) bindJoin(ctx context.Context, s *app.Session, env domain.Envelope) error {
	room, err := domain.NewRoomID(env.Room)
	if err != nil {
		return err
	}
	id, err := domain.NewIdentity(env.Field(o.Proto.IdentityKey))
	if err != nil {
		return fmt.Errorf("%s: %w", o.Proto.IdentityKey, err)
	}
	if cur, ok := s.Identity(); ok {
		if cur != id {
			return fmt.Errorf("%w as %s", domain.ErrAlreadyIdentified, cur)
		}
		return o.join(ctx, s, room)
	}
	// refuse before binding so the connection can retry with another id
	locals, _, _ := o.Rooms.Lookup(room, id)
	for _, m := range locals {
		if m.Conn != s.ID() {
			return fmt.Errorf("%w: %s in %s", domain.ErrIdentityTaken, id, room)
		}
	}
	if err := s.BindIdentity(id); err != nil {
		return err
	}
	return o.join(ctx, s, room)
}

// join replies to the joiner before anyone else hears about it. A repeated
// join gets the reply again but emits no presence event.
func (o *Orchestrator) join(ctx context.Context, s *app.Session, room domain.RoomID) error {
	res, err := s.JoinRoom(o.Rooms, room)
	if err != nil {
		return err
	}
	id, _ := s.Identity()

	out := domain.NewOutbound(o.Proto.Events.JoinReply)
	out.Room = room
	o.Proto.Identify(&out, id)
	if o.Proto.SnapshotOnJoin {
		out.Members = res.Members
	}
	o.reply(s, out)

	if res.Event != nil {
		log.Info().Str("module", "orch").Str("proto", string(o.Proto.Name)).Str("room", string(room)).Str("identity", string(id)).Msg("joined")
		o.announce(ctx, *res.Event)
	}
	return nil
}

// leave leaves the named room, or every joined room when none is named.
func (o *Orchestrator) leave(ctx context.Context, s *app.Session, env domain.Envelope) error {
	rooms := s.Rooms()
	if env.Room != "" {
		room, err := domain.NewRoomID(env.Room)
		if err != nil {
			return err
		}
		rooms = []domain.RoomID{room}
	}
	for _, room := range rooms {
		res := s.LeaveRoom(o.Rooms, room)
		if res.Event == nil {
			continue
		}
		log.Info().Str("module", "orch").Str("proto", string(o.Proto.Name)).Str("room", string(room)).Str("identity", string(res.Event.Identity)).Msg("left")
		o.announce(ctx, *res.Event)
		if o.Proto.Events.LeaveReply != "" {
			out := domain.NewOutbound(o.Proto.Events.LeaveReply)
			out.Room = room
			o.reply(s, out)
		}
	}
	return nil
}

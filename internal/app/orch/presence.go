package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// announce turns one membership transition into a notification for the
// other local members and a bus event for the other processes. The subject
// of the transition is never notified about itself.
func (o *Orchestrator) announce(ctx context.Context, ev domain.PresenceEvent) {
	name := o.Proto.Events.Joined
	if ev.Kind == domain.PresenceLeft {
		name = o.Proto.Events.Left
	}
	out := domain.NewOutbound(name)
	out.Room = ev.Room
	o.Proto.Identify(&out, ev.Identity)
	frame, err := encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch.presence").Msg("encode presence")
		return
	}

	o.deliver(ev.Room, o.Rooms.MembersOf(ev.Room), frame, ev.Conn)
	o.publish(ctx, busEvent{
		Kind:     kindPresence,
		Room:     ev.Room,
		Identity: ev.Identity,
		Presence: ev.Kind,
		Frame:    json.RawMessage(frame),
	})
}

package orch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	kindPresence    = "presence"
	kindMessage     = "message"
	kindRelay       = "relay"
	kindSyncRequest = "sync-request"
	kindSync        = "sync"
)

// busEvent is what travels between processes on a room channel. Frame is
// the already encoded outbound envelope, delivered as is.
type busEvent struct {
	ID         string              `json:"id"`
	Node       string              `json:"node"`
	Kind       string              `json:"kind"`
	Room       domain.RoomID       `json:"room"`
	Identity   domain.Identity     `json:"identity,omitempty"`
	Presence   domain.PresenceKind `json:"presence,omitempty"`
	Target     domain.Identity     `json:"target,omitempty"`
	Identities []domain.Identity   `json:"identities,omitempty"`
	Frame      json.RawMessage     `json:"frame,omitempty"`
}

// channel is a NATS-safe subject per protocol and room.
func (o *Orchestrator) channel(room domain.RoomID) string {
	return "relay." + string(o.Proto.Name) + ".room." + base64.RawURLEncoding.EncodeToString([]byte(room))
}

// publish is fire-and-forget: a failure loses cross-process delivery for
// this event only and is logged as degraded mode.
func (o *Orchestrator) publish(ctx context.Context, ev busEvent) {
	if o.Bus == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Node = o.Node
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch.fanout").Msg("encode bus event")
		return
	}
	if err := o.Bus.Publish(ctx, o.channel(ev.Room), data); err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %v", domain.ErrBusUnavailable, err)).
			Str("module", "orch.fanout").
			Str("proto", string(o.Proto.Name)).
			Str("room", string(ev.Room)).
			Str("kind", ev.Kind).
			Msg("publish failed, cross-process delivery lost")
	}
}

// Watch implements core.RoomWatcher.
func (o *Orchestrator) Watch(ctx context.Context, room domain.RoomID) {
	if o.Bus == nil {
		return
	}
	if !o.spawn(func() { o.watch(ctx, room) }) {
		log.Debug().Str("module", "orch.fanout").Str("room", string(room)).Msg("shutting down, not watching")
	}
}

func (o *Orchestrator) watch(ctx context.Context, room domain.RoomID) {
	logger := log.With().
		Str("module", "orch.fanout").
		Str("proto", string(o.Proto.Name)).
		Str("room", string(room)).
		Logger()

	sub, err := o.Bus.Subscribe(ctx, o.channel(room))
	if err != nil {
		logger.Warn().Err(err).Msg("subscribe failed, room is local-only")
		return
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Debug().Err(err).Msg("unsubscribe")
		}
	}()
	logger.Debug().Msg("watching")

	o.spawn(func() { o.publish(ctx, busEvent{Kind: kindSyncRequest, Room: room}) })
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("stop watching")
			return
		case data, ok := <-sub.Events():
			if !ok {
				return
			}
			o.handleRemote(ctx, room, data)
		}
	}
}

// handleRemote applies an event published by another process. Duplicates
// are dropped by id; presence is also idempotent through the shadow.
func (o *Orchestrator) handleRemote(ctx context.Context, room domain.RoomID, data []byte) {
	var ev busEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Debug().Err(err).Str("module", "orch.fanout").Msg("bad bus event")
		return
	}
	if ev.Node == o.Node || ev.Room != room {
		return
	}
	if o.seen.Seen(ev.ID) {
		return
	}

	switch ev.Kind {
	case kindPresence:
		applied := o.Rooms.ApplyRemote(domain.PresenceEvent{Room: room, Identity: ev.Identity, Kind: ev.Presence}, ev.Node)
		if applied {
			o.deliver(room, o.Rooms.MembersOf(room), core.Frame(ev.Frame), "")
		}
	case kindMessage:
		o.deliver(room, o.Rooms.MembersOf(room), core.Frame(ev.Frame), "")
	case kindRelay:
		if locals, _, _ := o.Rooms.Lookup(room, ev.Target); len(locals) > 0 {
			o.deliver(room, locals, core.Frame(ev.Frame), "")
		}
	case kindSyncRequest:
		// the reply lands on the channel this goroutine drains, so it must
		// not be published from here
		if ids := o.Rooms.LocalIdentities(room); len(ids) > 0 {
			o.spawn(func() { o.publish(ctx, busEvent{Kind: kindSync, Room: room, Identities: ids}) })
		}
	case kindSync:
		o.Rooms.SyncRemote(room, ev.Node, ev.Identities)
	default:
		log.Debug().Str("module", "orch.fanout").Str("kind", ev.Kind).Msg("unknown bus event")
	}
}

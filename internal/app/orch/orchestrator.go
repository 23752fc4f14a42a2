// Package orch routes inbound envelopes of one protocol endpoint, emits
// presence notifications and fans events out to other processes.
package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/roomrelay/internal/app"
	"github.com/dkeye/roomrelay/internal/app/protocol"
	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	defaultCleanupTimeout = 2 * time.Second
	dedupWindow           = 4096
)

type Options struct {
	Adapter        *protocol.Adapter
	Bus            core.Bus
	Node           string
	Policy         app.Policy
	CleanupTimeout time.Duration
}

type Orchestrator struct {
	Proto          *protocol.Adapter
	Rooms          *core.Registry
	Sessions       *app.Registry
	Policy         app.Policy
	Bus            core.Bus
	Node           string
	CleanupTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	seen   *dedup

	mu     sync.Mutex
	closed bool
	wg     conc.WaitGroup
}

func New(parent context.Context, opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		Proto:          opts.Adapter,
		Sessions:       app.NewRegistry(),
		Policy:         opts.Policy,
		Bus:            opts.Bus,
		Node:           opts.Node,
		CleanupTimeout: opts.CleanupTimeout,
		ctx:            ctx,
		cancel:         cancel,
		seen:           newDedup(dedupWindow),
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{Action: app.KickMember}
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = defaultCleanupTimeout
	}
	if o.Node == "" {
		o.Node = uuid.NewString()
	}
	o.Rooms = core.NewRegistry(ctx, o)
	return o
}

// Connect tracks a freshly accepted session. cancel stops its transport.
func (o *Orchestrator) Connect(s *app.Session, cancel context.CancelFunc) {
	o.Sessions.Bind(s, cancel)
	log.Info().Str("module", "orch").Str("proto", string(o.Proto.Name)).Str("conn", string(s.ID())).Str("client", s.Client()).Msg("connected")
}

// Disconnect runs the cleanup path of a session. Only the first call has
// any effect. Bus publishes are bounded by CleanupTimeout and never retried.
func (o *Orchestrator) Disconnect(s *app.Session) {
	events := s.Close(o.Rooms)
	// unbound last so WaitIdle also covers the left publishes
	defer o.Sessions.Unbind(s.ID())
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.CleanupTimeout)
	defer cancel()
	for _, ev := range events {
		o.announce(ctx, ev)
	}
	log.Info().Str("module", "orch").Str("proto", string(o.Proto.Name)).Str("conn", string(s.ID())).Int("rooms", len(events)).Msg("disconnected")
}

// spawn runs fn on a tracked goroutine unless Shutdown has begun.
func (o *Orchestrator) spawn(fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Go(fn)
	return true
}

// Shutdown closes every live session and waits for the room watchers.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.Sessions.CancelAll()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until every session has run its cleanup, so the bus can
// be closed without losing their left events.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		n := o.Sessions.Count()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d sessions still open: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Dispatch handles one inbound frame. Every per-message error ends up as an
// error envelope to the sender; none of them closes the connection.
func (o *Orchestrator) Dispatch(ctx context.Context, s *app.Session, data []byte) {
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		o.ReplyError(s, "", err)
		return
	}

	route, ok := o.Proto.Lookup(env.Type)
	if !ok {
		o.ReplyError(s, env.Type, fmt.Errorf("%w: %s", domain.ErrUnknownType, env.Type))
		return
	}

	switch route.Mode {
	case protocol.Control:
		err = o.control(ctx, s, route.Action, env)
	case protocol.Broadcast:
		err = o.broadcast(ctx, s, env)
	case protocol.Targeted:
		err = o.relay(ctx, s, env)
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(s.ID())).Str("type", env.Type).Msg("rejected")
		o.ReplyError(s, env.Type, err)
	}
}

func (o *Orchestrator) ReplyError(s *app.Session, originalType string, err error) {
	o.reply(s, domain.NewErrorOutbound(originalType, err))
}

func (o *Orchestrator) reply(s *app.Session, out domain.Outbound) {
	frame, err := encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", out.Type).Msg("encode reply")
		return
	}
	if err := s.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(s.ID())).Str("type", out.Type).Msg("reply dropped")
	}
}

// deliver pushes frame to members except exclude and applies the
// backpressure policy to members that cannot take it.
func (o *Orchestrator) deliver(room domain.RoomID, members []core.Member, frame core.Frame, exclude domain.ConnID) int {
	sent := 0
	for _, m := range members {
		if m.Conn == exclude {
			continue
		}
		if err := m.Signal.TrySend(frame); err != nil {
			switch o.Policy.OnBackPressure(room, m) {
			case app.KickMember:
				log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Str("conn", string(m.Conn)).Msg("kicking slow member")
				m.Signal.Close()
			case app.DropFrame, app.NoAction:
				log.Debug().Err(err).Str("module", "orch").Str("room", string(room)).Str("conn", string(m.Conn)).Msg("frame dropped")
			}
			continue
		}
		sent++
	}
	return sent
}

func encode(out domain.Outbound) (core.Frame, error) {
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATS maps bus channels to NATS subjects. Channel names must already be
// valid subjects.
type NATS struct {
	nc     *nats.Conn
	buffer int
}

func DialNATS(url, name string, buffer int) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "bus.nats").Msg("disconnected, fan-out degraded")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "bus.nats").Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	log.Info().Str("module", "bus.nats").Str("url", nc.ConnectedUrl()).Msg("connected")
	return NewNATS(nc, buffer), nil
}

func NewNATS(nc *nats.Conn, buffer int) *NATS {
	if buffer <= 0 {
		buffer = 256
	}
	return &NATS{nc: nc, buffer: buffer}
}

func (n *NATS) Publish(_ context.Context, channel string, data []byte) error {
	if !n.nc.IsConnected() {
		return fmt.Errorf("%w: nats status %s", domain.ErrBusUnavailable, n.nc.Status())
	}
	if err := n.nc.Publish(channel, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBusUnavailable, err)
	}
	return nil
}

type natsSub struct {
	sub    *nats.Subscription
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *natsSub) Events() <-chan []byte { return s.events }

func (s *natsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.sub.Unsubscribe()
	})
	return err
}

// Subscribe hands messages over in arrival order; NATS invokes the handler
// sequentially per subscription.
func (n *NATS) Subscribe(_ context.Context, channel string) (core.Subscription, error) {
	s := &natsSub{
		events: make(chan []byte, n.buffer),
		done:   make(chan struct{}),
	}
	sub, err := n.nc.Subscribe(channel, func(msg *nats.Msg) {
		select {
		case s.events <- msg.Data:
		case <-s.done:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrBusUnavailable, channel, err)
	}
	s.sub = sub
	return s, nil
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}

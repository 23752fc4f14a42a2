// Package bus implements core.Bus: an in-process bus for single-node
// deployments and tests, and a NATS bus for multi-process fan-out.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/roomrelay/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("bus closed")

// Memory delivers to every subscription of a channel in publish order.
// Publish blocks while a subscriber's buffer is full.
type Memory struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 256
	}
	return &Memory{
		buffer: buffer,
		subs:   make(map[string]map[*memorySub]struct{}),
	}
}

type memorySub struct {
	bus     *Memory
	channel string
	events  chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) Events() <-chan []byte { return s.events }

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if set, ok := s.bus.subs[s.channel]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.channel)
			}
		}
	})
	return nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(m.subs[channel]))
	for s := range m.subs[channel] {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		msg := append([]byte(nil), data...)
		select {
		case s.events <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (core.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s := &memorySub{
		bus:     m,
		channel: channel,
		events:  make(chan []byte, m.buffer),
		done:    make(chan struct{}),
	}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memorySub]struct{})
	}
	m.subs[channel][s] = struct{}{}
	log.Debug().Str("module", "bus.memory").Str("channel", channel).Msg("subscribed")
	return s, nil
}

// Subscribers reports the live subscriptions on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

//go:generate mockgen -source=bus_iface.go -destination=mocks/bus_mock.go -package=mocks

package core

import "context"

// Bus is the fan-out contract between server processes.
// Delivery is at-least-once and FIFO per channel for a single publisher;
// nothing else is assumed (no persistence, no replay, no global order).
type Bus interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is a stream of raw events published on one channel.
type Subscription interface {
	Events() <-chan []byte
	Unsubscribe() error
}

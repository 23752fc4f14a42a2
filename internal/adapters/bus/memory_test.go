package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ""
}

func TestMemory_FanOutInOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(16)

	s1, err := b.Subscribe(ctx, "room.a")
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, "room.a")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "room.b")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("room.a"))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, "room.a", []byte(fmt.Sprint(i))))
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprint(i), receive(t, s1.Events()))
		assert.Equal(t, fmt.Sprint(i), receive(t, s2.Events()))
	}

	select {
	case msg := <-other.Events():
		t.Fatalf("unexpected cross-channel delivery %q", msg)
	default:
	}
}

func TestMemory_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(1)

	s, err := b.Subscribe(ctx, "room.a")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "room.a", []byte("fills buffer")))

	done := make(chan error, 1)
	go func() { done <- b.Publish(ctx, "room.a", []byte("blocks")) }()

	require.NoError(t, s.Unsubscribe())
	require.NoError(t, s.Unsubscribe())
	select {
	case err := <-done:
		assert.NoError(t, err, "unsubscribe releases a blocked publisher")
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked")
	}
	assert.Zero(t, b.Subscribers("room.a"))
}

func TestMemory_PublishHonoursContext(t *testing.T) {
	b := NewMemory(1)
	_, err := b.Subscribe(context.Background(), "room.a")
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), "room.a", []byte("x")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, "room.a", []byte("y")), context.DeadlineExceeded)
}

func TestMemory_Closed(t *testing.T) {
	b := NewMemory(0)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "c", nil), ErrClosed)
	_, err := b.Subscribe(context.Background(), "c")
	assert.ErrorIs(t, err, ErrClosed)
}

package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/roomrelay/internal/app"
	"github.com/dkeye/roomrelay/internal/app/protocol"
	"github.com/dkeye/roomrelay/internal/core"
	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/stretchr/testify/require"
)

var errQueueFull = errors.New("queue full")

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed int
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed > 0 {
		return errors.New("connection closed")
	}
	if c.full {
		return errQueueFull
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed > 0
}

func (c *fakeConn) setFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

func (c *fakeConn) received() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) ofType(msgType string) []map[string]any {
	var out []map[string]any
	for _, m := range c.received() {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type client struct {
	sess *app.Session
	conn *fakeConn
}

func newHub(t *testing.T, adapter *protocol.Adapter, bus core.Bus, node string) *Orchestrator {
	t.Helper()
	o := New(context.Background(), Options{Adapter: adapter, Bus: bus, Node: node})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	})
	return o
}

func connect(o *Orchestrator, id string) *client {
	conn := &fakeConn{}
	s := app.NewSession(domain.ConnID(id), "", conn)
	o.Connect(s, nil)
	return &client{sess: s, conn: conn}
}

func send(o *Orchestrator, c *client, raw string) {
	o.Dispatch(context.Background(), c.sess, []byte(raw))
}

// lastError returns the reason of the most recent error envelope, or "".
func lastError(c *client) string {
	errs := c.conn.ofType("error")
	if len(errs) == 0 {
		return ""
	}
	reason, _ := errs[len(errs)-1]["reason"].(string)
	return reason
}

func payloadOf(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	p, ok := m["payload"].(map[string]any)
	require.True(t, ok, "frame has no object payload: %v", m)
	return p
}

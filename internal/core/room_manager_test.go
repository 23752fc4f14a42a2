package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{}

func (nopSignal) TrySend(Frame) error { return nil }
func (nopSignal) Close()              {}

type recordingWatcher struct {
	mu      sync.Mutex
	started map[domain.RoomID][]context.Context
}

func (w *recordingWatcher) Watch(ctx context.Context, room domain.RoomID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started == nil {
		w.started = make(map[domain.RoomID][]context.Context)
	}
	w.started[room] = append(w.started[room], ctx)
}

func (w *recordingWatcher) contexts(room domain.RoomID) []context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started[room]
}

func member(conn, identity string) Member {
	return Member{Conn: domain.ConnID(conn), Identity: domain.Identity(identity), Signal: nopSignal{}}
}

func TestRegistry_JoinLeave(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)

	res, err := reg.Join("r1", member("c1", "u1"))
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.True(t, res.Created)
	assert.Equal(t, domain.PresenceJoined, res.Event.Kind)
	assert.Equal(t, []domain.Identity{"u1"}, res.Members)

	res, err = reg.Join("r1", member("c2", "u2"))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []domain.Identity{"u1", "u2"}, res.Members)

	left := reg.Leave("r1", "c1")
	require.NotNil(t, left.Event)
	assert.Equal(t, domain.PresenceLeft, left.Event.Kind)
	assert.Equal(t, domain.Identity("u1"), left.Event.Identity)
	assert.False(t, left.Removed)
	assert.Len(t, reg.MembersOf("r1"), 1)

	left = reg.Leave("r1", "c2")
	assert.True(t, left.Removed)
	assert.False(t, reg.Exists("r1"))
	assert.Empty(t, reg.MembersOf("r1"))
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)

	first, err := reg.Join("r1", member("c1", "u1"))
	require.NoError(t, err)
	second, err := reg.Join("r1", member("c1", "u1"))
	require.NoError(t, err)

	assert.NotNil(t, first.Event)
	assert.Nil(t, second.Event, "duplicate join must not produce a presence event")
	assert.Equal(t, first.Members, second.Members)
	assert.Len(t, reg.MembersOf("r1"), 1)
}

func TestRegistry_LeaveNoop(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)

	assert.Nil(t, reg.Leave("ghost", "c1").Event)

	reg.Join("r1", member("c1", "u1"))
	assert.Nil(t, reg.Leave("r1", "c2").Event)
	assert.True(t, reg.Exists("r1"))
}

func TestRegistry_WatcherFollowsRoomLifetime(t *testing.T) {
	w := &recordingWatcher{}
	reg := NewRegistry(context.Background(), w)

	reg.Join("r1", member("c1", "u1"))
	reg.Join("r1", member("c2", "u2"))
	ctxs := w.contexts("r1")
	require.Len(t, ctxs, 1, "watcher starts once per room lifetime")
	assert.NoError(t, ctxs[0].Err())

	reg.Leave("r1", "c1")
	assert.NoError(t, ctxs[0].Err())
	reg.Leave("r1", "c2")
	assert.ErrorIs(t, ctxs[0].Err(), context.Canceled)

	reg.Join("r1", member("c3", "u3"))
	assert.Len(t, w.contexts("r1"), 2)
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			for j := 0; j < 100; j++ {
				reg.Join("hot", member(conn, conn))
				reg.Leave("hot", domain.ConnID(conn))
			}
			reg.Join("hot", member(conn, conn))
		}(i)
	}
	wg.Wait()

	assert.Len(t, reg.MembersOf("hot"), workers, "no join may be lost to a concurrent leave")
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)
	reg.Join("r1", member("c1", "u1"))

	locals, node, found := reg.Lookup("r1", "u1")
	assert.True(t, found)
	assert.Empty(t, node)
	require.Len(t, locals, 1)
	assert.Equal(t, domain.ConnID("c1"), locals[0].Conn)

	_, _, found = reg.Lookup("r1", "ghost")
	assert.False(t, found)

	_, _, found = reg.Lookup("nope", "u1")
	assert.False(t, found)
}

func TestRegistry_ApplyRemote(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)

	joined := domain.PresenceEvent{Room: "r1", Identity: "p9", Kind: domain.PresenceJoined}
	assert.False(t, reg.ApplyRemote(joined, "node-b"), "no local room, nothing to shadow")

	reg.Join("r1", member("c1", "u1"))
	assert.True(t, reg.ApplyRemote(joined, "node-b"))
	assert.False(t, reg.ApplyRemote(joined, "node-b"), "duplicate delivery is applied once")

	locals, node, found := reg.Lookup("r1", "p9")
	assert.True(t, found)
	assert.Empty(t, locals)
	assert.Equal(t, "node-b", node)

	res, err := reg.Join("r1", member("c2", "u2"))
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"p9", "u1", "u2"}, res.Members)

	left := domain.PresenceEvent{Room: "r1", Identity: "p9", Kind: domain.PresenceLeft}
	assert.False(t, reg.ApplyRemote(left, "node-c"), "left from another node does not evict")
	assert.True(t, reg.ApplyRemote(left, "node-b"))
	assert.False(t, reg.ApplyRemote(left, "node-b"))

	_, _, found = reg.Lookup("r1", "p9")
	assert.False(t, found)
}

func TestRegistry_SyncRemote(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)
	reg.Join("r1", member("c1", "u1"))

	added := reg.SyncRemote("r1", "node-b", []domain.Identity{"a", "b"})
	assert.Equal(t, []domain.Identity{"a", "b"}, added)
	added = reg.SyncRemote("r1", "node-b", []domain.Identity{"b", "c"})
	assert.Equal(t, []domain.Identity{"c"}, added)

	info := reg.List()
	require.Len(t, info, 1)
	assert.Equal(t, RoomInfo{Room: "r1", Members: 1, Remote: 3}, info[0])
}

func TestRegistry_IdentityHeldOncePerRoom(t *testing.T) {
	w := &recordingWatcher{}
	reg := NewRegistry(context.Background(), w)
	_, err := reg.Join("r1", member("c1", "p1"))
	require.NoError(t, err)

	_, err = reg.Join("r1", member("c2", "p1"))
	require.ErrorIs(t, err, domain.ErrIdentityTaken)
	assert.Equal(t, "identity_taken", domain.Reason(err))

	locals, _, _ := reg.Lookup("r1", "p1")
	require.Len(t, locals, 1)
	assert.Equal(t, domain.ConnID("c1"), locals[0].Conn)

	_, err = reg.Join("r2", member("c2", "p1"))
	assert.NoError(t, err, "the same identity may be used in another room")

	reg.Leave("r1", "c1")
	_, err = reg.Join("r1", member("c2", "p1"))
	assert.NoError(t, err, "the identity is free once its holder left")
	assert.Len(t, w.contexts("r1"), 2)
}

func TestRegistry_SyncedIdentityIsAnnouncedOnce(t *testing.T) {
	reg := NewRegistry(context.Background(), nil)
	_, err := reg.Join("r1", member("c1", "u1"))
	require.NoError(t, err)

	reg.SyncRemote("r1", "node-b", []domain.Identity{"u3"})
	joined := domain.PresenceEvent{Room: "r1", Identity: "u3", Kind: domain.PresenceJoined}
	assert.True(t, reg.ApplyRemote(joined, "node-b"), "a sync reply does not count as the announcement")
	assert.False(t, reg.ApplyRemote(joined, "node-b"))

	reg.SyncRemote("r1", "node-b", []domain.Identity{"u3"})
	assert.False(t, reg.ApplyRemote(joined, "node-b"), "a later sync keeps the announced state")
}

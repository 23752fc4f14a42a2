// Package protocol holds the static message-type tables of the two client
// protocols. A type's routing mode never depends on its payload.
package protocol

import (
	"slices"

	"github.com/dkeye/roomrelay/internal/domain"
)

type Mode int

const (
	Control Mode = iota
	Broadcast
	Targeted
)

func (m Mode) String() string {
	switch m {
	case Control:
		return "control"
	case Broadcast:
		return "broadcast"
	case Targeted:
		return "targeted"
	}
	return "unknown"
}

// Action selects the control handler. Relay types use ActionRelay.
type Action int

const (
	ActionRelay Action = iota
	ActionBind
	ActionJoin
	ActionBindJoin
	ActionLeave
	ActionDisconnect
	ActionPing
)

type Route struct {
	Mode   Mode
	Action Action
}

// Events names the outbound types of a protocol. An empty name means the
// protocol sends no such frame.
type Events struct {
	BindReply  string
	JoinReply  string
	LeaveReply string
	Joined     string
	Left       string
	Pong       string
}

type Adapter struct {
	Name        domain.Protocol
	IdentityKey string
	TargetKey   string
	// SnapshotOnJoin puts the member list into the join reply. The joiner
	// never receives its own presence notification either way.
	SnapshotOnJoin bool
	Events         Events

	routes map[string]Route
	stamp  func(out *domain.Outbound, id domain.Identity, relayed bool)
}

func (a *Adapter) Lookup(msgType string) (Route, bool) {
	r, ok := a.routes[msgType]
	return r, ok
}

// Types lists the accepted inbound types, sorted.
func (a *Adapter) Types() []string {
	out := make([]string, 0, len(a.routes))
	for t := range a.routes {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Identify writes id into the identity field this protocol uses.
func (a *Adapter) Identify(out *domain.Outbound, id domain.Identity) {
	a.stamp(out, id, false)
}

// IdentifySource is Identify for relayed messages.
func (a *Adapter) IdentifySource(out *domain.Outbound, id domain.Identity) {
	a.stamp(out, id, true)
}

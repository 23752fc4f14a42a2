package protocol

import "github.com/dkeye/roomrelay/internal/domain"

// MCP is the generic room-messaging protocol.
func MCP() *Adapter {
	return &Adapter{
		Name:           domain.ProtocolMCP,
		IdentityKey:    "user_id",
		SnapshotOnJoin: true,
		Events: Events{
			BindReply:  "connect",
			JoinReply:  "room-joined",
			LeaveReply: "room-left",
			Joined:     "user-joined",
			Left:       "user-left",
			Pong:       "pong",
		},
		routes: map[string]Route{
			"connect":    {Mode: Control, Action: ActionBind},
			"disconnect": {Mode: Control, Action: ActionDisconnect},
			"join-room":  {Mode: Control, Action: ActionJoin},
			"leave-room": {Mode: Control, Action: ActionLeave},
			"ping":       {Mode: Control, Action: ActionPing},
			"message":    {Mode: Broadcast, Action: ActionRelay},
		},
		stamp: func(out *domain.Outbound, id domain.Identity, _ bool) {
			out.UserID = id
		},
	}
}

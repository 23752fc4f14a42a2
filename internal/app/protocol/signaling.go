package protocol

import "github.com/dkeye/roomrelay/internal/domain"

// Signaling relays WebRTC negotiation between peers of a room. SDP and ICE
// payloads are opaque and forwarded verbatim.
func Signaling() *Adapter {
	return &Adapter{
		Name:        domain.ProtocolSignaling,
		IdentityKey: "peer_id",
		TargetKey:   "target_peer_id",
		Events: Events{
			JoinReply: "joined",
			Joined:    "peer-joined",
			Left:      "peer-left",
			Pong:      "pong",
		},
		routes: map[string]Route{
			"join":          {Mode: Control, Action: ActionBindJoin},
			"leave":         {Mode: Control, Action: ActionLeave},
			"ping":          {Mode: Control, Action: ActionPing},
			"offer":         {Mode: Targeted, Action: ActionRelay},
			"answer":        {Mode: Targeted, Action: ActionRelay},
			"ice-candidate": {Mode: Targeted, Action: ActionRelay},
		},
		stamp: func(out *domain.Outbound, id domain.Identity, relayed bool) {
			if relayed {
				out.SourcePeerID = id
				return
			}
			out.PeerID = id
		},
	}
}

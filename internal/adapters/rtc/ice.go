// Package rtc holds the WebRTC bits the relay hands to browsers. Media never
// flows through the server; peers negotiate directly over the signaling relay.
package rtc

import (
	"errors"
	"fmt"

	"github.com/dkeye/roomrelay/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoICEServers = errors.New("no ice servers configured")

// ICEServers converts the configured list into pion's form, rejecting URLs
// that are not valid stun:, stuns:, turn: or turns: URIs and TURN entries
// without credentials.
func ICEServers(servers []config.ICEServer) ([]webrtc.ICEServer, error) {
	if len(servers) == 0 {
		return nil, ErrNoICEServers
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		for _, raw := range s.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("ice_servers[%d]: %q: %w", i, raw, err)
			}
			if isTURN(uri) && (s.Username == "" || s.Credential == "") {
				return nil, fmt.Errorf("ice_servers[%d]: %q needs username and credential", i, raw)
			}
		}
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	log.Debug().Str("module", "rtc").Int("servers", len(out)).Msg("ice servers ready")
	return out, nil
}

// Configuration is what a browser passes to RTCPeerConnection.
func Configuration(servers []webrtc.ICEServer) webrtc.Configuration {
	return webrtc.Configuration{ICEServers: servers}
}

func isTURN(uri *stun.URI) bool {
	return uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS
}

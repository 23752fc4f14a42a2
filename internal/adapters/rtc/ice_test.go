package rtc

import (
	"testing"

	"github.com/dkeye/roomrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEServers(t *testing.T) {
	servers, err := ICEServers([]config.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}, Username: "u", Credential: "p"},
	})
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, servers[0].URLs)
	assert.Equal(t, "u", servers[1].Username)
	assert.Equal(t, "p", servers[1].Credential)

	cfg := Configuration(servers)
	assert.Len(t, cfg.ICEServers, 2)
}

func TestICEServers_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		servers []config.ICEServer
	}{
		{"empty", nil},
		{"no urls", []config.ICEServer{{}}},
		{"bad scheme", []config.ICEServer{{URLs: []string{"http://example.com"}}}},
		{"turn without credentials", []config.ICEServer{{URLs: []string{"turn:turn.example.com:3478"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ICEServers(tt.servers)
			assert.Error(t, err)
		})
	}
}

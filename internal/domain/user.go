// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	MaxIdentityLen = 64
	MaxRoomIDLen   = 128
)

// ConnID is a process-local connection id generated on accept.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Identity is the application name a connection binds (user_id or peer_id).
type Identity string

// NewIdentity avoids raw conversions in handlers and keeps validation in one place.
func NewIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingIdentity
	}
	if len(raw) > MaxIdentityLen {
		return "", ErrInvalidIdentity
	}
	return Identity(raw), nil
}

// Protocol names one of the two endpoint namespaces.
type Protocol string

const (
	ProtocolMCP       Protocol = "mcp"
	ProtocolSignaling Protocol = "signaling"
)

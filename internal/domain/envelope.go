package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is an inbound frame after parsing. Payload is kept raw so that
// relayed sub-payloads are forwarded verbatim.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Room    string          `json:"room,omitempty"`

	fields map[string]json.RawMessage
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrMalformedEnvelope)
	}
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		env.Payload = nil
		return env, nil
	}
	if err := json.Unmarshal(payload, &env.fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload must be an object", ErrMalformedEnvelope)
	}
	return env, nil
}

// Field returns a string field of the payload, or "" when absent or not a string.
func (e Envelope) Field(key string) string {
	raw, ok := e.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Outbound is every frame the server writes. Only the fields relevant to a
// given type are set.
type Outbound struct {
	Type         string          `json:"type"`
	Room         RoomID          `json:"room,omitempty"`
	UserID       Identity        `json:"user_id,omitempty"`
	PeerID       Identity        `json:"peer_id,omitempty"`
	SourcePeerID Identity        `json:"source_peer_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Members      []Identity      `json:"members,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	OriginalType string          `json:"original_type,omitempty"`
	Message      string          `json:"message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func NewOutbound(msgType string) Outbound {
	return Outbound{Type: msgType, Timestamp: time.Now().UTC()}
}

func NewErrorOutbound(originalType string, err error) Outbound {
	out := NewOutbound("error")
	out.Reason = Reason(err)
	out.OriginalType = originalType
	if msg := err.Error(); msg != out.Reason {
		out.Message = msg
	}
	return out
}

package domain

import "errors"

// Each sentinel's text is the wire reason sent back to clients.
var (
	ErrMalformedEnvelope = errors.New("malformed_envelope")
	ErrUnknownType       = errors.New("unknown_type")
	ErrNotIdentified     = errors.New("not_identified")
	ErrAlreadyIdentified = errors.New("already_identified")
	ErrNotInRoom         = errors.New("not_in_room")
	ErrPeerNotFound      = errors.New("peer_not_found")
	ErrIdentityTaken     = errors.New("identity_taken")
	ErrMissingRoom       = errors.New("missing_room")
	ErrInvalidRoom       = errors.New("invalid_room")
	ErrMissingIdentity   = errors.New("missing_identity")
	ErrInvalidIdentity   = errors.New("invalid_identity")
	ErrMissingTarget     = errors.New("missing_target")
	ErrRateLimited       = errors.New("rate_limited")
	ErrClosed            = errors.New("connection_closed")
	ErrBusUnavailable    = errors.New("bus_unavailable")
)

const ReasonInternal = "internal_error"

var reasons = []error{
	ErrMalformedEnvelope,
	ErrUnknownType,
	ErrNotIdentified,
	ErrAlreadyIdentified,
	ErrNotInRoom,
	ErrPeerNotFound,
	ErrIdentityTaken,
	ErrMissingRoom,
	ErrInvalidRoom,
	ErrMissingIdentity,
	ErrInvalidIdentity,
	ErrMissingTarget,
	ErrRateLimited,
	ErrClosed,
	ErrBusUnavailable,
}

// Reason maps err to the reason string of an error envelope.
func Reason(err error) string {
	for _, known := range reasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ReasonInternal
}

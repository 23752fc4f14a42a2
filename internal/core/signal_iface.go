package core

// Frame is one encoded outbound envelope.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full queue is reported as an error.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Package core holds the transport-facing interfaces and the wire protocol
// shared by the server adapter and the client orchestrator.
package core

// Frame is one encoded signaling message.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: slow consumers get an error, not a stall.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

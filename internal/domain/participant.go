package domain

import "errors"

const MaxChannelKeyLen = 64

var ErrChannelKeyEmpty = errors.New("channel key empty")

type (
	// ConnectionID identifies one live signaling connection. It is minted
	// on upgrade and dies with the socket; reconnects get a fresh one.
	ConnectionID string

	// ChannelKey names a voice channel. Opaque to the coordinator.
	ChannelKey string
)

// Participant is a user's presence in a voice channel, bound to exactly
// one live connection. Not persisted anywhere.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	Username     string       `json:"username"`
}

// NewParticipant keeps construction in one place instead of scattering
// literals across adapters.
func NewParticipant(cid ConnectionID, id Identity) Participant {
	return Participant{
		ConnectionID: cid,
		UserID:       id.UserID,
		Username:     id.Username,
	}
}

// CleanChannelKey validates and bounds a raw channel key from the wire.
func CleanChannelKey(raw string) (ChannelKey, error) {
	if raw == "" {
		return "", ErrChannelKeyEmpty
	}
	if len(raw) > MaxChannelKeyLen {
		raw = raw[:MaxChannelKeyLen]
	}
	return ChannelKey(raw), nil
}

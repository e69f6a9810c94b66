package core

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/akorh/huddle/internal/domain"
)

// MsgType discriminates the closed set of signaling messages.
type MsgType string

const (
	// client -> server
	MsgJoin      MsgType = "join"
	MsgLeave     MsgType = "leave"
	MsgPing      MsgType = "ping"
	MsgOffer     MsgType = "offer"
	MsgAnswer    MsgType = "answer"
	MsgCandidate MsgType = "ice-candidate"

	// server -> client
	MsgParticipants MsgType = "participants"
	MsgUserJoined   MsgType = "user-joined"
	MsgUserLeft     MsgType = "user-left"
	MsgPong         MsgType = "pong"
	MsgError        MsgType = "error"
)

// Envelope is the minimal shape every frame must have.
type Envelope struct {
	Type MsgType `json:"type"`
}

// Join asks the coordinator to place the caller into a channel,
// removing it from whatever channel it occupied before.
type Join struct {
	Type    MsgType `json:"type"`
	Channel string  `json:"channel" validate:"required"`
}

type Leave struct {
	Type    MsgType `json:"type"`
	Channel string  `json:"channel" validate:"required"`
}

// RelayOffer carries an SDP offer to one named connection. The coordinator
// does not look inside the SDP; it is opaque relay cargo.
type RelayOffer struct {
	Type   MsgType         `json:"type"`
	Target string          `json:"targetConnectionId" validate:"required"`
	Offer  json.RawMessage `json:"offer" validate:"required"`
}

type RelayAnswer struct {
	Type   MsgType         `json:"type"`
	Target string          `json:"targetConnectionId" validate:"required"`
	Answer json.RawMessage `json:"answer" validate:"required"`
}

type RelayCandidate struct {
	Type      MsgType         `json:"type"`
	Target    string          `json:"targetConnectionId" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// Participants is the full roster of a channel, sent only to the caller
// that just joined it. The caller itself is never in the list.
type Participants struct {
	Type         MsgType              `json:"type"`
	Channel      domain.ChannelKey    `json:"channel"`
	Participants []domain.Participant `json:"participants"`
}

type UserJoined struct {
	Type MsgType `json:"type"`
	domain.Participant
}

type UserLeft struct {
	Type MsgType `json:"type"`
	domain.Participant
}

// OfferFrom is a relayed offer tagged with the full sender identity so the
// receiver can render the peer before the call is up.
type OfferFrom struct {
	Type         MsgType             `json:"type"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	UserID       domain.UserID       `json:"userId"`
	Username     string              `json:"username"`
	Offer        json.RawMessage     `json:"offer"`
}

type AnswerFrom struct {
	Type         MsgType             `json:"type"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Answer       json.RawMessage     `json:"answer"`
}

type CandidateFrom struct {
	Type         MsgType             `json:"type"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Candidate    json.RawMessage     `json:"candidate"`
}

type Pong struct {
	Type MsgType `json:"type"`
}

type ErrorMsg struct {
	Type  MsgType `json:"type"`
	Error string  `json:"error"`
}

var validate = validator.New()

// Decode unmarshals a frame into the given payload type and validates its
// required fields.
func Decode[T any](data []byte) (T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return p, fmt.Errorf("validate: %w", err)
	}
	return p, nil
}

// Encode marshals a message into a frame. Marshal failures are programmer
// errors here since all payloads are plain structs, but the error is still
// propagated rather than swallowed.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return Frame(b), nil
}

// TypeOf peeks at the envelope without decoding the payload.
func TypeOf(data []byte) (MsgType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("envelope: %w", err)
	}
	return env.Type, nil
}

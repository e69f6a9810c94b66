package client

import (
	"github.com/pion/webrtc/v4"
)

// PeerState is the per-remote-connection lifecycle:
// absent -> negotiating -> connected -> absent.
type PeerState int

const (
	PeerAbsent PeerState = iota
	PeerNegotiating
	PeerConnected
)

// MediaConn is what the orchestrator needs from a negotiated connection.
// rtc.Connection implements it; tests substitute a fake.
type MediaConn interface {
	CreateAndSetOffer() (webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(ci webrtc.ICECandidateInit) error
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnClosed(func())
	Close()
}

// NewMediaConn creates a connection object for one remote connection id.
type NewMediaConn func(peerID string) (MediaConn, error)

// peer owns one remote participant's connection and audio output.
// Mutated only under Client.mu.
type peer struct {
	id       string
	username string
	state    PeerState
	conn     MediaConn
	sink     AudioSink
}

func (p *peer) teardown() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	if p.sink != nil {
		p.sink.Close()
		p.sink = nil
	}
	p.state = PeerAbsent
}

// Package rtc wraps a pion PeerConnection behind the client orchestrator's
// MediaConn interface. One Connection per remote participant.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Connection struct {
	pc    *webrtc.PeerConnection
	peer  string
	onICE func(webrtc.ICECandidateInit)

	onTrack  func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

// ConfigFromStun builds a webrtc.Configuration from the statically
// configured STUN URL list.
func ConfigFromStun(servers []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: servers},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, peer string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, peer: peer}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", c.peer).Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if c.onClosed != nil {
				c.onClosed()
			}
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", c.peer).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if c.onTrack != nil {
			c.onTrack(track, receiver)
		}
	})

	return c, nil
}

// CreateAndSetOffer produces the local offer. Candidates trickle through
// OnICECandidate; there is no wait for gathering to complete.
func (c *Connection) CreateAndSetOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches the local audio track to the PeerConnection.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *Connection) Close() {
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", c.peer).Msg("close error")
		}
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets the application-level callback for remote audio.
func (c *Connection) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnClosed sets the callback run when the connection dies underneath us.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }

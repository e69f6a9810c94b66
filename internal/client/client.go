// Package client is the peer orchestrator: it turns membership events from
// the coordinator into a full mesh of negotiated audio connections, one per
// remote participant.
package client

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/core"
)

var ErrNoMedia = errors.New("local media not acquired")

// Signaler sends signaling messages to the coordinator. The WebSocket
// transport implements it; tests substitute a recorder.
type Signaler interface {
	Send(v any) error
}

// Client owns the local capture, the set of peer connections and the
// mute/deafen flags. All state is guarded by mu; the transport read loop
// feeds HandleMessage one frame at a time.
type Client struct {
	mu sync.Mutex

	sig     Signaler
	newConn NewMediaConn
	newSink NewAudioSink
	acquire AcquireAudio

	source   AudioSource
	peers    map[string]*peer
	channel  string
	muted    bool
	deafened bool
}

func New(sig Signaler, newConn NewMediaConn, newSink NewAudioSink, acquire AcquireAudio) *Client {
	return &Client{
		sig:     sig,
		newConn: newConn,
		newSink: newSink,
		acquire: acquire,
		peers:   make(map[string]*peer),
	}
}

// Join acquires local media (if not already held) and asks the coordinator
// for the channel. If acquisition fails no join is sent: the coordinator
// never learns about a participant that cannot produce audio.
func (c *Client) Join(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		src, err := c.acquire()
		if err != nil {
			return err
		}
		c.source = src
		c.source.SetEnabled(!c.muted)
	}
	c.channel = channel
	return c.sig.Send(core.Join{Type: core.MsgJoin, Channel: channel})
}

// Leave tears down every peer connection, releases the capture and tells
// the coordinator we are gone.
func (c *Client) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, p := range c.peers {
		p.teardown()
		delete(c.peers, id)
	}
	if c.source != nil {
		c.source.Close()
		c.source = nil
	}
	channel := c.channel
	c.channel = ""
	if channel == "" {
		return nil
	}
	return c.sig.Send(core.Leave{Type: core.MsgLeave, Channel: channel})
}

// Mute gates the outgoing track. Local-only: no signaling message.
func (c *Client) Mute(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.source != nil {
		c.source.SetEnabled(!muted)
	}
}

// Deafen silences every remote sink and, deliberately, also mutes: a
// deafened user must not keep talking unheard. Undeafen does not unmute;
// that stays an explicit user action.
func (c *Client) Deafen(deafened bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deafened = deafened
	for _, p := range c.peers {
		if p.sink != nil {
			p.sink.SetEnabled(!deafened)
		}
	}
	if deafened {
		c.muted = true
		if c.source != nil {
			c.source.SetEnabled(false)
		}
	}
}

// PeerStates is a snapshot for UIs and tests.
func (c *Client) PeerStates() map[string]PeerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]PeerState, len(c.peers))
	for id, p := range c.peers {
		out[id] = p.state
	}
	return out
}

// HandleMessage dispatches one inbound signaling frame.
func (c *Client) HandleMessage(data []byte) {
	t, err := core.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad envelope")
		return
	}
	switch t {
	case core.MsgParticipants:
		c.onParticipants(data)
	case core.MsgUserJoined:
		c.onUserJoined(data)
	case core.MsgUserLeft:
		c.onUserLeft(data)
	case core.MsgOffer:
		c.onOffer(data)
	case core.MsgAnswer:
		c.onAnswer(data)
	case core.MsgCandidate:
		c.onCandidate(data)
	case core.MsgPong, core.MsgError:
		// pong is keepalive bookkeeping; errors are surfaced by the caller's
		// transport layer.
	default:
		log.Warn().Str("module", "client").Str("type", string(t)).Msg("unknown signal")
	}
}

// onParticipants records the roster received on join. Existing occupants
// initiate offers toward us, so each entry starts absent and transitions
// on their inbound offer.
func (c *Client) onParticipants(data []byte) {
	msg, err := core.Decode[core.Participants](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad participants payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range msg.Participants {
		id := string(p.ConnectionID)
		if _, ok := c.peers[id]; !ok {
			c.peers[id] = &peer{id: id, username: p.Username, state: PeerAbsent}
		}
	}
	log.Info().Str("module", "client").Str("channel", string(msg.Channel)).Int("peers", len(msg.Participants)).Msg("roster received")
}

// onUserJoined: a newcomer appeared and we already hold local media, so we
// are the offering side for this pair.
func (c *Client) onUserJoined(data []byte) {
	msg, err := core.Decode[core.UserJoined](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad user-joined payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := string(msg.ConnectionID)
	p, ok := c.peers[id]
	if !ok {
		p = &peer{id: id, username: msg.Username, state: PeerAbsent}
		c.peers[id] = p
	}
	if c.source == nil {
		// Cannot offer without local audio; the newcomer will never get a
		// connection from us until we join with media ourselves.
		return
	}
	if err := c.offerTo(p); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", id).Msg("offer failed")
		p.teardown()
	}
}

// offerTo runs the offering side of negotiation. Caller holds mu.
func (c *Client) offerTo(p *peer) error {
	conn, err := c.attachConn(p)
	if err != nil {
		return err
	}
	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	p.state = PeerNegotiating
	return c.sig.Send(core.RelayOffer{Type: core.MsgOffer, Target: p.id, Offer: raw})
}

// onOffer runs the answering side: create (or reuse) the connection,
// attach local audio, apply the remote description and send back an answer.
func (c *Client) onOffer(data []byte) {
	msg, err := core.Decode[core.OfferFrom](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad offer payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := string(msg.ConnectionID)
	p, ok := c.peers[id]
	if !ok {
		p = &peer{id: id, username: msg.Username, state: PeerAbsent}
		c.peers[id] = p
	}
	conn, err := c.attachConn(p)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", id).Msg("conn for offer")
		return
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Offer, &offer); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer", id).Msg("bad offer sdp")
		return
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", id).Msg("apply offer")
		p.teardown()
		delete(c.peers, id)
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("marshal answer")
		return
	}
	p.state = PeerNegotiating
	if err := c.sig.Send(core.RelayAnswer{Type: core.MsgAnswer, Target: id, Answer: raw}); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", id).Msg("send answer")
	}
}

func (c *Client) onAnswer(data []byte) {
	msg, err := core.Decode[core.AnswerFrom](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad answer payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peers[string(msg.ConnectionID)]
	if !ok || p.conn == nil {
		log.Debug().Str("module", "client").Str("peer", string(msg.ConnectionID)).Msg("answer for unknown peer, dropped")
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad answer sdp")
		return
	}
	if err := p.conn.ApplyAnswer(answer); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer", p.id).Msg("apply answer")
		return
	}
	p.state = PeerConnected
}

// onCandidate applies a relayed ICE candidate if the connection exists;
// candidates racing ahead of or trailing behind the connection's lifetime
// are dropped, which is harmless.
func (c *Client) onCandidate(data []byte) {
	msg, err := core.Decode[core.CandidateFrom](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad candidate payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peers[string(msg.ConnectionID)]
	if !ok || p.conn == nil {
		log.Debug().Str("module", "client").Str("peer", string(msg.ConnectionID)).Msg("candidate without connection, dropped")
		return
	}
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &ci); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad candidate json")
		return
	}
	if err := p.conn.AddICECandidate(ci); err != nil {
		log.Debug().Err(err).Str("module", "client").Str("peer", p.id).Msg("add candidate")
	}
}

func (c *Client) onUserLeft(data []byte) {
	msg, err := core.Decode[core.UserLeft](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad user-left payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := string(msg.ConnectionID)
	if p, ok := c.peers[id]; ok {
		p.teardown()
		delete(c.peers, id)
		log.Info().Str("module", "client").Str("peer", id).Msg("peer departed")
	}
}

// attachConn creates the connection object for a peer if it does not exist
// yet, wiring candidate trickle, remote audio and failure cleanup.
// Caller holds mu.
func (c *Client) attachConn(p *peer) (MediaConn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	if c.source == nil {
		return nil, ErrNoMedia
	}
	conn, err := c.newConn(p.id)
	if err != nil {
		return nil, err
	}
	if _, err := conn.AddLocalTrack(c.source.Track()); err != nil {
		conn.Close()
		return nil, err
	}

	id := p.id
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := c.sig.Send(core.RelayCandidate{Type: core.MsgCandidate, Target: id, Candidate: raw}); err != nil {
			log.Debug().Err(err).Str("module", "client").Str("peer", id).Msg("send candidate")
		}
	})

	sink := c.newSink(id)
	sink.SetEnabled(!c.deafened)
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		sink.Play(track)
	})
	conn.OnClosed(func() {
		c.dropPeer(id)
	})

	p.conn = conn
	p.sink = sink
	return conn, nil
}

// dropPeer is the OnClosed path: the media connection died underneath the
// signaling session. The roster broadcast, if any, arrives independently.
func (c *Client) dropPeer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.peers[id]; ok && p.conn != nil {
		// The connection is already dead; do not Close it again, that
		// would re-enter this path.
		p.conn = nil
		if p.sink != nil {
			p.sink.Close()
			p.sink = nil
		}
		p.state = PeerAbsent
	}
}

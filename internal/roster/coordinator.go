package roster

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/core"
	"github.com/akorh/huddle/internal/domain"
)

var ErrNotRegistered = errors.New("connection not registered")

// binding ties a live connection to its authenticated identity.
type binding struct {
	identity domain.Identity
	conn     core.SignalConnection
	gone     sync.Once
}

// Coordinator is the membership state machine. Every mutation of the Store
// happens as one atomic step under mu, and broadcast fan-out runs against
// the post-mutation state while mu is still held, so every occupant of a
// channel observes membership events in the order operations were accepted.
// TrySend never blocks, which keeps holding the lock during fan-out cheap.
type Coordinator struct {
	mu    sync.RWMutex
	store *Store
	conns map[domain.ConnectionID]*binding
}

func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{
		store: store,
		conns: make(map[domain.ConnectionID]*binding),
	}
}

// Register admits an authenticated connection. Must be called before any
// other operation with this cid; the signal adapter does it right after
// the upgrade.
func (c *Coordinator) Register(cid domain.ConnectionID, id domain.Identity, conn core.SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[cid] = &binding{identity: id, conn: conn}
	log.Info().Str("module", "roster").Str("cid", string(cid)).Str("user", string(id.UserID)).Msg("connection registered")
}

// Join moves the caller into the target channel: removes it from any prior
// channel (broadcasting user-left there), inserts it, broadcasts user-joined
// to the other occupants and replies to the caller with the roster excluding
// itself. Rejoining the current channel deliberately re-runs the full
// leave/join cycle; the net roster is unchanged.
func (c *Coordinator) Join(cid domain.ConnectionID, key domain.ChannelKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.conns[cid]
	if !ok {
		return ErrNotRegistered
	}

	if prev, p, ok := c.store.RemoveEverywhere(cid); ok {
		c.broadcastLeft(prev, p)
		log.Info().Str("module", "roster").Str("cid", string(cid)).Str("from", string(prev)).Msg("left previous channel")
	}

	p := domain.NewParticipant(cid, b.identity)
	c.store.Add(key, p)

	c.broadcast(key, cid, core.UserJoined{Type: core.MsgUserJoined, Participant: p})

	c.send(b, core.Participants{
		Type:         core.MsgParticipants,
		Channel:      key,
		Participants: c.store.Snapshot(key, cid),
	})
	log.Info().Str("module", "roster").Str("cid", string(cid)).Str("channel", string(key)).Msg("joined channel")
	return nil
}

// Leave removes the caller from the named channel if it is a member.
// Not being a member is not an error.
func (c *Coordinator) Leave(cid domain.ConnectionID, key domain.ChannelKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.store.Remove(key, cid)
	if !ok {
		return
	}
	c.broadcastLeft(key, p)
	log.Info().Str("module", "roster").Str("cid", string(cid)).Str("channel", string(key)).Msg("left channel")
}

// Disconnect runs the cleanup for a terminated connection: remove it from
// any channel, notify the remaining occupants, drop the binding. Safe to
// call more than once per connection; the cleanup runs exactly once.
func (c *Coordinator) Disconnect(cid domain.ConnectionID) {
	c.mu.Lock()
	b, ok := c.conns[cid]
	c.mu.Unlock()
	if !ok {
		return
	}
	b.gone.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if key, p, ok := c.store.RemoveEverywhere(cid); ok {
			c.broadcastLeft(key, p)
		}
		delete(c.conns, cid)
		log.Info().Str("module", "roster").Str("cid", string(cid)).Msg("connection cleaned up")
	})
}

// RelayOffer forwards an SDP offer to the target connection, tagged with
// the sender's full identity. A missing target is a silent drop: the peer
// may legitimately have disconnected, and the user-left broadcast is the
// authoritative signal for that.
func (c *Coordinator) RelayOffer(from domain.ConnectionID, target domain.ConnectionID, offer json.RawMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sender, ok := c.conns[from]
	if !ok {
		return
	}
	tgt, ok := c.conns[target]
	if !ok {
		log.Debug().Str("module", "roster").Str("target", string(target)).Msg("offer target gone, dropped")
		return
	}
	c.send(tgt, core.OfferFrom{
		Type:         core.MsgOffer,
		ConnectionID: from,
		UserID:       sender.identity.UserID,
		Username:     sender.identity.Username,
		Offer:        offer,
	})
}

func (c *Coordinator) RelayAnswer(from domain.ConnectionID, target domain.ConnectionID, answer json.RawMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tgt, ok := c.conns[target]
	if !ok {
		log.Debug().Str("module", "roster").Str("target", string(target)).Msg("answer target gone, dropped")
		return
	}
	c.send(tgt, core.AnswerFrom{Type: core.MsgAnswer, ConnectionID: from, Answer: answer})
}

func (c *Coordinator) RelayCandidate(from domain.ConnectionID, target domain.ConnectionID, candidate json.RawMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tgt, ok := c.conns[target]
	if !ok {
		log.Debug().Str("module", "roster").Str("target", string(target)).Msg("candidate target gone, dropped")
		return
	}
	c.send(tgt, core.CandidateFrom{Type: core.MsgCandidate, ConnectionID: from, Candidate: candidate})
}

// Channels lists non-empty channels for the HTTP API.
func (c *Coordinator) Channels() []ChannelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.List()
}

// broadcast fans a message out to every occupant of key except the actor.
// Callers hold mu.
func (c *Coordinator) broadcast(key domain.ChannelKey, except domain.ConnectionID, msg any) {
	for _, p := range c.store.Snapshot(key, except) {
		if b, ok := c.conns[p.ConnectionID]; ok {
			c.send(b, msg)
		}
	}
}

func (c *Coordinator) broadcastLeft(key domain.ChannelKey, p domain.Participant) {
	c.broadcast(key, p.ConnectionID, core.UserLeft{Type: core.MsgUserLeft, Participant: p})
}

// send is fire-and-forget: a full buffer or a closed connection only costs
// that one receiver the message, never the operation.
func (c *Coordinator) send(b *binding, msg any) {
	frame, err := core.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "roster").Msg("encode broadcast")
		return
	}
	if err := b.conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "roster").Str("user", string(b.identity.UserID)).Msg("send dropped")
	}
}

package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/core"
	"github.com/akorh/huddle/internal/domain"
)

func (ctl *Controller) handleJoin(cid domain.ConnectionID, c *wsConn, data []byte) {
	p, err := core.Decode[core.Join](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	key, err := domain.CleanChannelKey(p.Channel)
	if err != nil {
		ctl.sendError(c, "bad_channel")
		return
	}
	if err := ctl.Coord.Join(cid, key); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("join")
		ctl.sendError(c, "join_failed")
	}
}

func (ctl *Controller) handleLeave(cid domain.ConnectionID, c *wsConn, data []byte) {
	p, err := core.Decode[core.Leave](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad leave payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	key, err := domain.CleanChannelKey(p.Channel)
	if err != nil {
		ctl.sendError(c, "bad_channel")
		return
	}
	ctl.Coord.Leave(cid, key)
}

func (ctl *Controller) handleOffer(cid domain.ConnectionID, c *wsConn, data []byte) {
	p, err := core.Decode[core.RelayOffer](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad offer payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.RelayOffer(cid, domain.ConnectionID(p.Target), p.Offer)
}

func (ctl *Controller) handleAnswer(cid domain.ConnectionID, c *wsConn, data []byte) {
	p, err := core.Decode[core.RelayAnswer](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad answer payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.RelayAnswer(cid, domain.ConnectionID(p.Target), p.Answer)
}

func (ctl *Controller) handleCandidate(cid domain.ConnectionID, c *wsConn, data []byte) {
	p, err := core.Decode[core.RelayCandidate](data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad candidate payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.RelayCandidate(cid, domain.ConnectionID(p.Target), p.Candidate)
}

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, core.Pong{Type: core.MsgPong})
}

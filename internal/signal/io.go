package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/akorh/huddle/internal/core"
	"github.com/akorh/huddle/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, cid domain.ConnectionID, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("cid", string(cid)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("cid", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump reads frames until the socket dies, whatever the cause. Its
// deferred cleanup is the single exit point where a connection leaves the
// roster, so a participant can never outlive its transport.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, cid domain.ConnectionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Coord.Disconnect(cid)
	}()

	// The peer has this long to answer a ping before the read fails and
	// cleanup runs. Covers transports that die without a close frame.
	pongWait := ctl.Cfg.PingPeriod * 10 / 9

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(ctl.Cfg.MsgRate), ctl.Cfg.MsgBurst)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			if !limiter.Allow() {
				ctl.sendError(c, "rate_limited")
				continue
			}
			ctl.dispatch(cid, c, data)
		}
	}
}

// dispatch routes one inbound frame. Malformed input fails only this
// request; it never touches another connection or channel.
func (ctl *Controller) dispatch(cid domain.ConnectionID, c *wsConn, data []byte) {
	t, err := core.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad envelope")
		ctl.sendError(c, "bad_payload")
		return
	}
	switch t {
	case core.MsgJoin:
		ctl.handleJoin(cid, c, data)
	case core.MsgLeave:
		ctl.handleLeave(cid, c, data)
	case core.MsgOffer:
		ctl.handleOffer(cid, c, data)
	case core.MsgAnswer:
		ctl.handleAnswer(cid, c, data)
	case core.MsgCandidate:
		ctl.handleCandidate(cid, c, data)
	case core.MsgPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(t)).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON encode")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	ctl.sendJSON(c, core.ErrorMsg{Type: core.MsgError, Error: msg})
}

// Package signal is the WebSocket adapter: it owns the sockets, the
// read/write pumps and the dispatch over the wire protocol. All membership
// decisions are delegated to the roster coordinator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/auth"
	"github.com/akorh/huddle/internal/config"
	"github.com/akorh/huddle/internal/core"
	"github.com/akorh/huddle/internal/domain"
	"github.com/akorh/huddle/internal/roster"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord *roster.Coordinator
	Cfg   *config.Config
}

func NewController(coord *roster.Coordinator, cfg *config.Config) *Controller {
	return &Controller{Coord: coord, Cfg: cfg}
}

// wsConn wraps a websocket with a buffered outbound queue so TrySend never
// blocks the sender.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an authenticated request to a signaling connection.
// The auth middleware has already verified the bearer credential; a request
// without an attached identity never gets a socket.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cid := domain.ConnectionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("user", string(id.UserID)).Msg("new signaling connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	ctl.Coord.Register(cid, id, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cancel, cid, conn)
}

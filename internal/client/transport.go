package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSSignaler is the WebSocket implementation of Signaler: one signaling
// connection per client session, authenticated with the bearer token at
// the handshake.
type WSSignaler struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func Dial(ctx context.Context, url, token string) (*WSSignaler, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &WSSignaler{conn: conn}, nil
}

// Send marshals and writes one message. Writes are serialized; gorilla
// allows only one concurrent writer.
func (s *WSSignaler) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Run pumps inbound frames into the handler until the socket or ctx dies.
func (s *WSSignaler) Run(ctx context.Context, onMessage func([]byte)) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "client").Msg("signaler read error")
				return
			}
			onMessage(data)
		}
	}
}

func (s *WSSignaler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

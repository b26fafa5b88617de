package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"photo-guess/internal/domain"
	"photo-guess/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	commandTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type string `json:"type"`
	// PlayerID is the pick for a guess.
	PlayerID uuid.UUID `json:"player_id"`
}

type outboundMessage struct {
	Type    string        `json:"type"`
	View    *session.View `json:"view,omitempty"`
	Command string        `json:"command,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type peer struct {
	conn   *websocket.Conn
	client *session.Client
	send   chan outboundMessage
	log    zerolog.Logger
}

// handleWebsocket streams the caller's session view and accepts the same
// commands as the REST routes.
func (s *Server) handleWebsocket(c *gin.Context) {
	sess := currentSession(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client, err := session.Open(s.ctx, s.game, sess, s.log)
	if err != nil {
		_ = conn.Close()
		return
	}
	p := &peer{
		conn:   conn,
		client: client,
		send:   make(chan outboundMessage, 16),
		log:    s.log.With().Str("room_id", sess.RoomID.String()).Str("player_id", sess.PlayerID.String()).Logger(),
	}
	p.log.Debug().Str("remote", c.Request.RemoteAddr).Msg("ws connected")
	s.peers.Add(2)
	go s.writePump(p)
	go s.readPump(p)
}

func (s *Server) readPump(p *peer) {
	defer s.peers.Done()
	defer p.client.Close()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Debug().Err(err).Msg("ws closed")
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.reply(outboundMessage{Type: "error", Error: "messages must be JSON"})
			continue
		}
		s.dispatch(p, msg)
	}
}

func (s *Server) dispatch(p *peer, msg inboundMessage) {
	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	defer cancel()
	var err error
	switch msg.Type {
	case session.CommandStartUpload:
		err = p.client.StartUpload(ctx)
	case session.CommandStartPlaying:
		err = p.client.StartPlaying(ctx)
	case session.CommandAdvance:
		err = p.client.Advance(ctx)
	case session.CommandReady:
		err = p.client.MarkReady(ctx)
	case session.CommandGuess:
		_, err = p.client.SubmitGuess(ctx, msg.PlayerID)
	default:
		p.reply(outboundMessage{Type: "error", Command: msg.Type, Error: "unknown command"})
		return
	}
	if err != nil {
		p.reply(outboundMessage{Type: "error", Command: msg.Type, Error: domain.Message(err)})
	}
}

func (p *peer) reply(msg outboundMessage) {
	select {
	case p.send <- msg:
	default:
		p.log.Warn().Str("type", msg.Type).Msg("ws reply dropped")
	}
}

// writePump owns all writes to the connection. It stops when the session
// view channel closes, which happens after the read side or the server
// closed the session.
func (s *Server) writePump(p *peer) {
	defer s.peers.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	views := p.client.Views()
	for {
		select {
		case v, ok := <-views:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(outboundMessage{Type: "view", View: &v}); err != nil {
				p.client.Close()
				return
			}
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.client.Close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.client.Close()
				return
			}
		}
	}
}

package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wordbingo/internal/config"
	"github.com/cory-johannsen/wordbingo/internal/game/session"
)

// Conn is one player's WebSocket connection paired with the outbox the
// coordinator writes to.
type Conn struct {
	id     string
	raw    *websocket.Conn
	outbox *session.Outbox
	cfg    config.WebSocketConfig
	logger *zap.Logger

	closeOnce sync.Once
}

// NewConn wraps an upgraded WebSocket connection.
//
// Precondition: raw must be an open connection; id must be non-empty.
// Postcondition: Returns a Conn with a fresh, open outbox.
func NewConn(id string, raw *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *Conn {
	return &Conn{
		id:     id,
		raw:    raw,
		outbox: session.NewOutbox(id, cfg.OutboxSize),
		cfg:    cfg,
		logger: logger.With(zap.String("client_id", id)),
	}
}

// ID returns the client ID the connection registers under.
func (c *Conn) ID() string { return c.id }

// Outbox returns the outbound frame queue of the connection.
func (c *Conn) Outbox() *session.Outbox { return c.outbox }

// Close closes the socket. Safe to call multiple times and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		_ = c.raw.Close()
	})
}

// writePump relays outbox frames to the socket and sends keepalive pings.
// It returns once the outbox is closed or a write fails, closing the socket
// so the read loop ends too.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outbox.Frames():
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.raw.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.raw.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("writing frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.raw.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("writing ping", zap.Error(err))
				return
			}
		}
	}
}

// readLoop decodes inbound frames and hands them to coord until the socket
// fails or a coordinator call is rejected. Undecodable frames are skipped.
func (c *Conn) readLoop(ctx context.Context, coord Coordinator) error {
	c.raw.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.raw.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.raw.SetPongHandler(func(string) error {
		return c.raw.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		msgType, data, err := c.raw.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		_ = c.raw.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Debug("ignoring inbound frame", zap.Error(err))
			continue
		}
		if err := c.dispatch(ctx, coord, msg); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, coord Coordinator, msg Inbound) error {
	var err error
	switch msg.Kind {
	case KindRegister:
		err = coord.RegisterPlayer(ctx, c.id, msg.User, c.outbox)
	case KindCard:
		err = coord.SubmitCard(ctx, c.id, msg.Card)
	case KindPlay:
		err = coord.RequestStart(ctx, c.id)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", msg.Kind, err)
	}
	return nil
}

// isExpectedClose reports whether err is an ordinary end of a connection.
func isExpectedClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return true
		}
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}

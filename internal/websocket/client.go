package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/johndosdos/dmchat/internal/model"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one realtime session. conn is nil for sessions drained by
// another transport, such as server-sent events.
type Client struct {
	UserID    string
	conn      *websocket.Conn
	Hub       *Hub
	MessageCh chan model.Envelope
	typingLim *rate.Limiter
}

func NewClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		conn:      conn,
		MessageCh: make(chan model.Envelope, 64),
		UserID:    userID,
	}
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

// WriteMessage writes queued envelopes to the websocket stream and keeps the
// connection alive with periodic pings.
func (c *Client) WriteMessage(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.MessageCh:
			// The hub closes the channel on unregister.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, env)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write event",
					"error", err,
					"event", env.Event,
					"user_id", c.UserID)
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.InfoContext(ctx, "keepalive failed",
					"error", err,
					"user_id", c.UserID)
				c.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

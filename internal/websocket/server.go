package websocket

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/johndosdos/dmchat/internal/metrics"
	"github.com/johndosdos/dmchat/internal/model"
)

type typingFrame struct {
	ReceiverID string `json:"receiverId"`
}

// ReadMessage reads the incoming data from the websocket stream until the
// connection closes, then unregisters the client.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.Hub.Leave(c)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				log.Printf("%v", err)
			}
			return
		}

		// The app only supports text format for now...
		if msgType != websocket.MessageText {
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			slog.DebugContext(ctx, "failed to process frame from client",
				"error", err,
				"user_id", c.UserID)
			continue
		}

		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env model.Envelope) {
	switch env.Event {
	case model.EventTyping:
		if c.typingLim != nil && !c.typingLim.Allow() {
			metrics.RateLimited.WithLabelValues("typing").Inc()
			return
		}
		var f typingFrame
		if err := json.Unmarshal(env.Data, &f); err != nil || f.ReceiverID == "" {
			return
		}
		if c.Hub.inbound == nil {
			return
		}
		if err := c.Hub.inbound.Typing(ctx, c.UserID, f.ReceiverID); err != nil {
			slog.DebugContext(ctx, "typing relay failed",
				"error", err,
				"user_id", c.UserID)
		}

	default:
		slog.DebugContext(ctx, "ignoring client event",
			"event", env.Event,
			"user_id", c.UserID)
	}
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/johndosdos/dmchat/internal/auth"
	ws "github.com/johndosdos/dmchat/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := auth.GetUserFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.opts.ClientOrigins}
	if len(h.opts.ClientOrigins) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.WarnContext(ctx, "websocket upgrade failed",
			"user_id", userID,
			"error", err)
		return
	}

	c := ws.NewClient(conn, userID)
	if h.opts.TypingRequests > 0 {
		c.SetTypingLimiter(h.opts.TypingRequests, h.opts.TypingWindow)
	}

	// We'll register our new client to the central hub.
	if err := h.hub.Join(ctx, c); err != nil {
		conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	slog.InfoContext(ctx, "websocket session opened", "user_id", userID)

	// We block on c.ReadMessage() because the request context will be canceled as soon
	// we return from the ServeWs() handler.
	go c.WriteMessage(ctx)
	c.ReadMessage(ctx)

	slog.InfoContext(ctx, "websocket session closed", "user_id", userID)
}

package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/model"
	ws "github.com/johndosdos/dmchat/internal/websocket"
)

const (
	sseHeartbeat  = 15 * time.Second
	sseRetryDelay = 3 * time.Second
)

func writeSSE(w io.Writer, seq uint64, env model.Envelope) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, env.Event, env.Data)
	return err
}

// StreamSSE is a receive-only alternative to the websocket for clients
// behind proxies that block upgrades. It carries the same events.
func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := auth.GetUserFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryDelay.Milliseconds()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.WarnContext(ctx, "event stream not flushable", "error", err)
		return
	}

	// The stream joins the hub as a session without a socket.
	c := ws.NewClient(nil, userID)
	if err := h.hub.Join(ctx, c); err != nil {
		return
	}
	defer h.hub.Leave(c)

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case env, ok := <-c.MessageCh:
			if !ok {
				return
			}
			seq++
			if err := writeSSE(w, seq, env); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}

		if err := rc.Flush(); err != nil {
			slog.DebugContext(ctx, "event stream closed", "user_id", userID, "error", err)
			return
		}
	}
}

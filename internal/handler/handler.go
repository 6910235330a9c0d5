// Package handler exposes the chat service over HTTP, WebSocket and
// server-sent events.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/chat"
	ws "github.com/johndosdos/dmchat/internal/websocket"
)

const maxBodyBytes = chat.MaxImageBytes + 1<<20

type Handler struct {
	svc    *chat.Service
	hub    *ws.Hub
	tokens auth.Tokens
	opts   Options
}

// Options tune transport behaviour.
type Options struct {
	SecureCookies  bool
	ClientOrigins  []string
	TypingRequests int
	TypingWindow   time.Duration
}

func New(svc *chat.Service, hub *ws.Hub, tokens auth.Tokens, opts Options) *Handler {
	return &Handler{svc: svc, hub: hub, tokens: tokens, opts: opts}
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError maps service errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var msg string

	switch {
	case errors.Is(err, chat.ErrValidation):
		status, msg = http.StatusBadRequest, detail(err, chat.ErrValidation)
	case errors.Is(err, chat.ErrBadCredentials):
		status, msg = http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, auth.ErrNoUser):
		status, msg = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, chat.ErrForbidden):
		status, msg = http.StatusForbidden, detail(err, chat.ErrForbidden)
	case errors.Is(err, chat.ErrNotFound):
		status, msg = http.StatusNotFound, detail(err, chat.ErrNotFound)
	case errors.Is(err, chat.ErrConflict):
		status, msg = http.StatusBadRequest, "Email or username already exists"
	case errors.Is(err, chat.ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, detail(err, chat.ErrTooLarge)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		status, msg = http.StatusInternalServerError, "Internal server error"
	}

	writeJSON(w, status, errorBody{Message: msg})
}

// detail drops the sentinel suffix so clients see "text or image is
// required" rather than "text or image is required: validation failed".
func detail(err, sentinel error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("request body too large: %w", chat.ErrTooLarge)
		}
		return fmt.Errorf("invalid JSON body: %w", chat.ErrValidation)
	}
	return nil
}

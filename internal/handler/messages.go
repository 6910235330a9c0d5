package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// Contacts lists every user except the caller.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	users, err := h.svc.Contacts(r.Context(), self)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Chats lists the caller's conversations, most recent first.
func (h *Handler) Chats(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	chats, err := h.svc.Chats(r.Context(), self)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// Conversation loads the history with the peer named in the path.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	msgs, err := h.svc.Conversation(r.Context(), self, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	var req model.SendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.svc.Send(r.Context(), self, chi.URLParam(r, "id"), chat.SendInput{
		Text:          req.Text,
		Image:         req.Image,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: req.ForwardedFrom,
		ClientID:      req.ClientID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), self, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, errorBody{Message: "Message deleted successfully"})
}

func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	var req reactionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.svc.React(r.Context(), self, chi.URLParam(r, "id"), req.Emoji)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) Unreact(w http.ResponseWriter, r *http.Request) {
	self, ok := h.self(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Unreact(r.Context(), self, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) self(w http.ResponseWriter, r *http.Request) (string, bool) {
	self, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return self, true
}

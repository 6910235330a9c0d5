package handler

import (
	"log/slog"
	"net/http"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

type signupRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is the user profile plus the token for clients that
// cannot read HTTP-only cookies.
type sessionResponse struct {
	model.User
	Token string `json:"token"`
}

// Signup creates an account and starts a session.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.Signup(r.Context(), chat.SignupInput{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.startSession(w, r, http.StatusCreated, user)
}

// Login verifies credentials and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.startSession(w, r, http.StatusOK, user)
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.opts.SecureCookies)
	writeJSON(w, http.StatusOK, errorBody{Message: "Logged out successfully"})
}

// Check returns the authenticated user's profile.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	self, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.Me(r.Context(), self)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	token, err := h.tokens.Make(user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth.SetSessionCookie(w, token, h.tokens.Lifetime, h.opts.SecureCookies)

	slog.DebugContext(r.Context(), "session started",
		slog.String("user_id", user.ID))
	writeJSON(w, status, sessionResponse{User: user, Token: token})
}

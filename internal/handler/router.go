package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/dmchat/internal"
	"github.com/johndosdos/dmchat/internal/metrics"
)

// Routes lists the optional pieces mounted next to the API.
type Routes struct {
	RateLimit func(http.Handler) http.Handler
	Uploads   http.Handler
	Health    http.Handler
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Router wires every endpoint.
func (h *Handler) Router(extra Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	requireAuth := internal.Middleware(h.tokens)

	r.Handle("/metrics", metrics.Handler())
	if extra.Health != nil {
		r.Handle("/healthz", extra.Health)
	}
	if extra.Uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", extra.Uploads))
	}

	r.With(requireAuth).Get("/ws", h.ServeWs)

	r.Route("/api", func(r chi.Router) {
		// Long-lived streams stay outside the latency histogram.
		r.With(requireAuth).Get("/events", h.StreamSSE)

		r.Group(func(r chi.Router) {
			r.Use(metrics.Instrument(routePattern))

			r.Route("/auth", func(r chi.Router) {
				if extra.RateLimit != nil {
					r.Use(extra.RateLimit)
				}
				r.Post("/signup", h.Signup)
				r.Post("/login", h.Login)
				r.Post("/logout", h.Logout)
				r.With(requireAuth).Get("/check", h.Check)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Use(requireAuth)
				if extra.RateLimit != nil {
					r.Use(extra.RateLimit)
				}
				r.Get("/contacts", h.Contacts)
				r.Get("/chats", h.Chats)
				r.Post("/send/{id}", h.Send)
				r.Get("/{id}", h.Conversation)
				r.Delete("/{id}", h.Delete)
				r.Post("/{id}/reaction", h.React)
				r.Delete("/{id}/reaction", h.Unreact)
			})
		})
	})

	return r
}

package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/johndosdos/dmchat/internal/auth"
)

// Middleware validates the client's JWT and stores the user id in the
// request context.
func Middleware(tokens auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "Unauthorized - No token provided")
				return
			}

			userID, err := tokens.Validate(token)
			if err != nil {
				slog.DebugContext(r.Context(), "rejected token",
					"path", r.URL.Path,
					"error", err)
				unauthorized(w, "Unauthorized - Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/auth"
)

func TestMiddleware(t *testing.T) {
	tokens := auth.Tokens{Secret: "test-secret", Issuer: "dmchat", Lifetime: 5 * time.Minute}

	valid, err := tokens.Make("u1")
	require.NoError(t, err)
	expired, err := auth.MakeJWT("u1", "dmchat", tokens.Secret, -time.Second)
	require.NoError(t, err)
	forged, err := auth.MakeJWT("u1", "dmchat", "other-secret", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name              string
		cookie            string
		bearer            string
		wantHandlerCalled bool
		wantCode          int
	}{
		{"valid_cookie", valid, "", true, http.StatusOK},
		{"valid_bearer", "", valid, true, http.StatusOK},
		{"expired_JWT", expired, "", false, http.StatusUnauthorized},
		{"wrong_secret", forged, "", false, http.StatusUnauthorized},
		{"empty_cookies", "", "", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/messages/contacts", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()

			isHandlerCalled := false
			var gotUser string
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				isHandlerCalled = true
				gotUser, _ = auth.GetUserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			Middleware(tokens)(nextHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantHandlerCalled, isHandlerCalled)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantHandlerCalled {
				assert.Equal(t, "u1", gotUser)
			} else {
				assert.Contains(t, rec.Body.String(), `"message"`)
			}
		})
	}
}

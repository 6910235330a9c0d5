package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("unique hashes", func(t *testing.T) {
		pw := "password1234"
		hash, err := HashPassword(pw)
		if err != nil {
			t.Fatalf("password hash fail #1: %+v", err)
		}

		hash2, err := HashPassword(pw)
		if err != nil {
			t.Fatalf("password hash fail #2: %+v", err)
		}

		if hash == hash2 {
			t.Fatalf("hash and hash2 are the same hashes; should be different: %s, %s", hash, hash2)
		}
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := HashPassword("")
		if err != nil {
			t.Errorf("HashPassword() failed on empty string: %+v", err)
		}
	})
}

func TestCheckPasswordHash(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		checkPw   string
		hash      string
		wantErr   bool
		wantMatch bool
	}{
		{"correct pw", "mypassword1234", "mypassword1234", "", false, true},
		{"incorrect pw", "mypassword1234", "passwordDD1234", "", false, false},
		{"wrong hash", "mypassword1234", "passwordDD1234", "not-a-hash", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hash string
			var err error

			if tt.hash != "" {
				hash = tt.hash
			} else {
				hash, err = HashPassword(tt.password)
				if err != nil {
					t.Fatalf("%+v", err)
				}
			}

			isMatch, err := CheckPasswordHash(tt.checkPw, hash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckPasswordHash() error = %+v", err)
			}
			if isMatch != tt.wantMatch {
				t.Errorf("password and hash don't match")
			}
		})
	}

}

func TestJWT(t *testing.T) {
	tokenSecret := "validtokensecret"

	t.Run("Valid_JWT", func(t *testing.T) {
		userID := uuid.NewString()
		tokenString, err := MakeJWT(userID, "dmchat", tokenSecret, 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		gotUserID, err := ValidateJWT(tokenString, tokenSecret)
		if err != nil {
			t.Fatalf("ValidateJWT() error = %+v", err)
		}
		if gotUserID != userID {
			t.Errorf("want = %+v, got = %+v", userID, gotUserID)
		}
	})

	t.Run("Object_id_subject", func(t *testing.T) {
		// Mongo ids are 24 hex chars rather than UUIDs.
		tokenString, err := MakeJWT("65f1c0ffee0ddba11c0ffee0", "", tokenSecret, time.Minute)
		require.NoError(t, err)
		got, err := ValidateJWT(tokenString, tokenSecret)
		require.NoError(t, err)
		assert.Equal(t, "65f1c0ffee0ddba11c0ffee0", got)
	})

	t.Run("Incorrect_secret", func(t *testing.T) {
		tokenString, err := MakeJWT(uuid.NewString(), "dmchat", tokenSecret, 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		_, err = ValidateJWT(tokenString, "fakesecret")
		if err == nil {
			t.Fatal("ValidateJWT() expected error")
		}
	})

	t.Run("Expired_token", func(t *testing.T) {
		tokenString, err := MakeJWT(uuid.NewString(), "dmchat", tokenSecret, -1*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		_, err = ValidateJWT(tokenString, tokenSecret)
		if err == nil {
			t.Fatal("ValidateJWT() expected error")
		}
	})

	t.Run("Corrupt_token", func(t *testing.T) {
		_, err := ValidateJWT("corrupttoken", tokenSecret)
		if err == nil {
			t.Fatal("ValidateJWT() expected error")
		}
	})

	t.Run("Empty_subject", func(t *testing.T) {
		_, err := MakeJWT("", "dmchat", tokenSecret, time.Minute)
		assert.Error(t, err)
	})
}

func TestTokens(t *testing.T) {
	tok := Tokens{Secret: "s3cret", Issuer: "dmchat", Lifetime: time.Hour}
	s, err := tok.Make("u1")
	require.NoError(t, err)

	got, err := tok.Validate(s)
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	other := Tokens{Secret: "other", Lifetime: time.Hour}
	_, err = other.Validate(s)
	assert.Error(t, err)
}

func TestGetUserFromContext(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		want    string
		wantErr bool
	}{
		{"valid_user", WithUser(context.Background(), "u1"), "u1", false},
		{"wrong_type", context.WithValue(context.Background(), UserIDKey, uuid.New()), "", true},
		{"empty_context_value", WithUser(context.Background(), ""), "", true},
		{"no_context", context.Background(), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetUserFromContext(tt.ctx)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoUser)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"cookie", "abc", "", "abc"},
		{"bearer", "", "Bearer xyz", "xyz"},
		{"cookie_wins", "abc", "Bearer xyz", "abc"},
		{"basic_ignored", "", "Basic Zm9vOmJhcg==", ""},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, TokenFromRequest(req))
		})
	}
}

func TestSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", time.Hour, true)
	ClearSessionCookie(rec, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

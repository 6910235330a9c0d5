package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"JWT_SECRET": "s",
		"DB_URL":     "postgres://localhost/dm",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "dmchat", cfg.JWTIssuer)
	assert.Empty(t, cfg.NATSURL)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":                "9000",
		"STORE_DRIVER":        "Mongo",
		"MONGODB_URI":         "mongodb://localhost:27017",
		"JWT_SECRET":          "s",
		"PUBLIC_URL":          "https://chat.example.com/",
		"CLIENT_URL":          "https://a.example.com, https://b.example.com",
		"RATE_LIMIT_REQUESTS": "7",
		"RATE_LIMIT_WINDOW":   "30s",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "https://chat.example.com", cfg.PublicURL)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.ClientOrigins)
	assert.Equal(t, 7, cfg.RateLimitRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"DB_URL": "x"}, "JWT_SECRET"},
		{"missing db", map[string]string{"JWT_SECRET": "s"}, "DB_URL"},
		{"missing mongo", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "mongo"}, "MONGODB_URI"},
		{"unknown driver", map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"bad window", map[string]string{"JWT_SECRET": "s", "DB_URL": "x", "RATE_LIMIT_WINDOW": "soon"}, "RATE_LIMIT_WINDOW"},
		{"bad requests", map[string]string{"JWT_SECRET": "s", "DB_URL": "x", "RATE_LIMIT_REQUESTS": "-1"}, "RATE_LIMIT_REQUESTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

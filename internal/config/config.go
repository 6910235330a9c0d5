// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port        string
	StoreDriver string

	DBURL        string
	MongoURI     string
	MongoDB      string
	NATSURL      string
	NATSCred     string
	NATSUser     string
	NATSPassword string

	JWTSecret     string
	JWTIssuer     string
	TokenLifetime time.Duration
	SecureCookies bool

	UploadDir string
	PublicURL string

	ClientOrigins     []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TypingRequests    int
	TypingWindow      time.Duration
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:         get("PORT", "8080"),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", DriverPostgres)),
		DBURL:        get("DB_URL", ""),
		MongoURI:     get("MONGODB_URI", ""),
		MongoDB:      get("MONGODB_DB", "dmchat"),
		NATSURL:      get("NATS_URL", ""),
		NATSCred:     get("NATS_CRED", ""),
		NATSUser:     get("NATS_USER", ""),
		NATSPassword: get("NATS_PASSWORD", ""),
		JWTSecret:    get("JWT_SECRET", ""),
		JWTIssuer:    get("JWT_ISS", "dmchat"),
		UploadDir:    get("UPLOAD_DIR", "uploads"),
	}
	cfg.PublicURL = strings.TrimRight(get("PUBLIC_URL", "http://localhost:"+cfg.Port), "/")
	cfg.SecureCookies = strings.HasPrefix(cfg.PublicURL, "https://")

	if origins := get("CLIENT_URL", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.ClientOrigins = append(cfg.ClientOrigins, o)
			}
		}
	}

	var errs []error
	intVar := func(key string, def int) int {
		v, err := strconv.Atoi(get(key, strconv.Itoa(def)))
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer", key))
			return def
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := time.ParseDuration(get(key, def.String()))
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", key))
			return def
		}
		return v
	}

	cfg.TokenLifetime = durVar("JWT_LIFETIME", 7*24*time.Hour)
	cfg.RateLimitRequests = intVar("RATE_LIMIT_REQUESTS", 100)
	cfg.RateLimitWindow = durVar("RATE_LIMIT_WINDOW", time.Minute)
	cfg.TypingRequests = intVar("TYPING_LIMIT_REQUESTS", 5)
	cfg.TypingWindow = durVar("TYPING_LIMIT_WINDOW", 3*time.Second)

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is not set"))
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBURL == "" {
			errs = append(errs, errors.New("DB_URL environment variable is not set"))
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI environment variable is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	return cfg, errors.Join(errs...)
}

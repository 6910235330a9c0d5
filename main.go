// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/broker"
	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/config"
	"github.com/johndosdos/dmchat/internal/database"
	"github.com/johndosdos/dmchat/internal/handler"
	"github.com/johndosdos/dmchat/internal/media"
	"github.com/johndosdos/dmchat/internal/mongostore"
	"github.com/johndosdos/dmchat/internal/ratelimiter"
	ws "github.com/johndosdos/dmchat/internal/websocket"
)

// healthStore is a chat.Store that can report health.
type healthStore interface {
	chat.Store
	handler.Pinger
}

type natsPinger struct{ conn *nats.Conn }

func (p natsPinger) Ping(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	// Init store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("could not open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	health := map[string]handler.Pinger{"store": store}

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Init event bus. Without NATS, events only reach sessions on this instance.
	var events chat.Emitter = broker.NewLocal(hub)
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		log.Println("Initializing NATS connection...")

		natsConn, err = connectNATS(cfg)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}

		js, err := jetstream.New(natsConn)
		if err != nil {
			log.Fatalf("failed to create jetstream instance: %v", err)
		}

		stream, err := broker.EnsureStream(ctx, js)
		if err != nil {
			log.Fatalf("failed to create/update stream: %v", err)
		}

		bus := broker.NewNATS(js, hub)
		go func() {
			if err := bus.Run(ctx, stream); err != nil {
				log.Printf("event consumer stopped: %v", err)
			}
		}()
		events = bus
		health["nats"] = natsPinger{conn: natsConn}
	}

	uploads, err := media.NewDisk(cfg.UploadDir, cfg.PublicURL+"/uploads")
	if err != nil {
		log.Fatalf("could not prepare uploads: %v", err)
	}

	svc := chat.NewService(store, events, hub, uploads)
	hub.SetInbound(svc)

	limiter := ratelimiter.NewIPRateLimiter(ctx, cfg.RateLimitRequests, cfg.RateLimitWindow, ratelimiter.CleanupOpts{})

	tokens := auth.Tokens{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Lifetime: cfg.TokenLifetime,
	}
	h := handler.New(svc, hub, tokens, handler.Options{
		SecureCookies:  cfg.SecureCookies,
		ClientOrigins:  cfg.ClientOrigins,
		TypingRequests: cfg.TypingRequests,
		TypingWindow:   cfg.TypingWindow,
	})

	// WriteTimeout stays unset so WebSocket and SSE streams are not cut off.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler: h.Router(handler.Routes{
			RateLimit: limiter.Middleware,
			Uploads:   uploads.Handler(),
			Health:    handler.ServeHealth(health),
		}),
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	// Drain NATS connection.
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			log.Printf("couldn't drain NATS conn: %+v", err)
		}
	}

	log.Println("Server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (healthStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		log.Println("Initializing MongoDB connection...")
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		if err := s.CreateIndexes(ctx); err != nil {
			_ = s.Close(context.Background())
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				log.Printf("couldn't disconnect MongoDB: %v", err)
			}
		}, nil

	default:
		log.Println("Initializing Database connection...")
		pool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return database.New(pool), pool.Close, nil
	}
}

func connectNATS(cfg config.Config) (*nats.Conn, error) {
	var opts []nats.Option
	if cfg.NATSCred != "" {
		opts = append(opts, nats.UserCredentials(cfg.NATSCred))
	} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	opts = append(opts,
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	return nats.Connect(cfg.NATSURL, opts...)
}

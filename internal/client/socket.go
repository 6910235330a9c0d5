package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/dmchat/internal/chatstate"
	"github.com/johndosdos/dmchat/internal/model"
)

var (
	ErrNotConnected = errors.New("client: socket not connected")
	ErrRunning      = errors.New("client: socket already running")
)

const (
	defaultDialBackoff = 250 * time.Millisecond
	defaultDialRetries = 10
)

// Socket is a reconnecting WebSocket session. Handlers run on a single
// goroutine in delivery order.
type Socket struct {
	url         string
	token       string
	logger      *slog.Logger
	dialBackoff time.Duration
	dialRetries uint64
	running     atomic.Bool

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]func(json.RawMessage)
	conn   *websocket.Conn

	events chan model.Envelope
}

type SocketOption func(*Socket)

// WithDialRetries sets the first backoff delay and how many consecutive
// failed dials Run tolerates before giving up.
func WithDialRetries(backoff time.Duration, retries uint64) SocketOption {
	return func(s *Socket) {
		s.dialBackoff = backoff
		s.dialRetries = retries
	}
}

func NewSocket(url, token string, logger *slog.Logger, opts ...SocketOption) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Socket{
		url:         url,
		token:       token,
		logger:      logger,
		dialBackoff: defaultDialBackoff,
		dialRetries: defaultDialRetries,
		subs:        make(map[string]map[uint64]func(json.RawMessage)),
		events:      make(chan model.Envelope, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Socket) Subscribe(event string, fn func(json.RawMessage)) model.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if s.subs[event] == nil {
		s.subs[event] = make(map[uint64]func(json.RawMessage))
	}
	s.subs[event][s.nextID] = fn
	return model.Handle{Event: event, ID: s.nextID}
}

func (s *Socket) Unsubscribe(h model.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs[h.Event], h.ID)
	if len(s.subs[h.Event]) == 0 {
		delete(s.subs, h.Event)
	}
}

// Connected reports whether a session is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SendTyping tells peerID that the user is typing.
func (s *Socket) SendTyping(ctx context.Context, peerID string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	env, err := model.NewEnvelope(model.EventTyping, model.TypingEvent{ReceiverID: peerID})
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, env)
}

// Run keeps a session open until ctx is done, redialing with exponential
// backoff after every disconnect. It returns once the dial retries are
// exhausted. Only one Run may be active at a time.
func (s *Socket) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		conn, err := s.dial(ctx)
		if err != nil {
			return err
		}
		err = s.read(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("socket disconnected, reconnecting", "error", err)
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.NewExponential(s.dialBackoff)
	backoff = retry.WithCappedDuration(10*time.Second, backoff)
	backoff = retry.WithMaxRetries(s.dialRetries, backoff)
	backoff = retry.WithJitterPercent(20, backoff)

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		header := http.Header{}
		if s.token != "" {
			header.Set("Authorization", "Bearer "+s.token)
		}
		c, res, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
		if err != nil {
			if res != nil && res.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("dial %s: %w", s.url, err)
			}
			s.logger.Debug("dial failed", "url", s.url, "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

func (s *Socket) read(ctx context.Context, conn *websocket.Conn) error {
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.CloseNow()
	}()

	for {
		var env model.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		select {
		case s.events <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Socket) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.events:
			s.mu.Lock()
			fns := make([]func(json.RawMessage), 0, len(s.subs[env.Event]))
			for _, fn := range s.subs[env.Event] {
				fns = append(fns, fn)
			}
			s.mu.Unlock()

			for _, fn := range fns {
				fn(env.Data)
			}
		}
	}
}

var _ chatstate.Transport = (*Socket)(nil)

package websocket

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sort"
	"sync"

	"github.com/johndosdos/dmchat/internal/metrics"
	"github.com/johndosdos/dmchat/internal/model"
)

var ErrHubStopped = errors.New("websocket: hub stopped")

// Inbound handles events sent by clients over their session.
type Inbound interface {
	Typing(ctx context.Context, self, peer string) error
}

type Registration struct {
	Client *Client
	Done   chan struct{}
}

type delivery struct {
	userID string
	env    model.Envelope
}

// Hub tracks every live session on this instance. A user may hold several
// sessions (tabs, devices) and each one receives every event for that user.
type Hub struct {
	sessions   map[string]map[*Client]struct{}
	Register   chan Registration
	Unregister chan *Client
	deliveries chan delivery
	done       chan struct{}

	mu     sync.RWMutex
	online map[string]struct{}

	inbound Inbound
}

// NewHub returns a new instance of Hub.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]struct{}),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		deliveries: make(chan delivery, 1024),
		done:       make(chan struct{}),
		online:     make(map[string]struct{}),
	}
}

// SetInbound wires the handler for client-originated events. It must be
// called before Run.
func (h *Hub) SetInbound(in Inbound) {
	h.inbound = in
}

// Deliver queues env for every local session of userID.
func (h *Hub) Deliver(userID string, env model.Envelope) {
	select {
	case h.deliveries <- delivery{userID: userID, env: env}:
	case <-h.done:
	}
}

// Online reports whether userID has a live session on this instance.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.online[userID]
	return ok
}

// OnlineUsers returns the ids of connected users, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.online))
	for id := range h.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run manages registration and outgoing hub traffic.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.Register:
			client := reg.Client
			client.Hub = h
			first := h.add(client)
			close(reg.Done)

			if first {
				h.broadcastPresence()
			} else {
				h.sendPresence(client)
			}

		case client := <-h.Unregister:
			if h.remove(client) {
				h.broadcastPresence()
			}

		case d := <-h.deliveries:
			for client := range h.sessions[d.userID] {
				h.push(client, d.env)
			}

		case <-ctx.Done():
			log.Printf("hub stopped: %v", ctx.Err())
			return
		}
	}
}

// add registers client and reports whether it is the user's first session.
func (h *Hub) add(c *Client) bool {
	set, ok := h.sessions[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.sessions[c.UserID] = set
	}
	set[c] = struct{}{}
	metrics.Sessions.Inc()

	if ok {
		return false
	}
	h.mu.Lock()
	h.online[c.UserID] = struct{}{}
	n := len(h.online)
	h.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))
	return true
}

// remove unregisters client and reports whether the user went offline.
func (h *Hub) remove(c *Client) bool {
	set, ok := h.sessions[c.UserID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	close(c.MessageCh)
	metrics.Sessions.Dec()

	if len(set) > 0 {
		return false
	}
	delete(h.sessions, c.UserID)
	h.mu.Lock()
	delete(h.online, c.UserID)
	n := len(h.online)
	h.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))
	return true
}

func (h *Hub) push(c *Client, env model.Envelope) {
	select {
	case c.MessageCh <- env:
		metrics.EventsDelivered.WithLabelValues(env.Event).Inc()
	default:
		metrics.EventsDropped.Inc()
		slog.Warn("skipping event - channel full or client slow",
			"event", env.Event,
			"user_id", c.UserID)
	}
}

func (h *Hub) presenceEnvelope() (model.Envelope, bool) {
	env, err := model.NewEnvelope(model.EventOnlineUsers, h.OnlineUsers())
	if err != nil {
		log.Printf("failed to encode presence: %v", err)
		return model.Envelope{}, false
	}
	return env, true
}

func (h *Hub) broadcastPresence() {
	env, ok := h.presenceEnvelope()
	if !ok {
		return
	}
	for _, set := range h.sessions {
		for client := range set {
			h.push(client, env)
		}
	}
}

func (h *Hub) sendPresence(c *Client) {
	if env, ok := h.presenceEnvelope(); ok {
		h.push(c, env)
	}
}

// Join registers c and blocks until the hub has accepted it.
func (h *Hub) Join(ctx context.Context, c *Client) error {
	reg := Registration{Client: c, Done: make(chan struct{})}
	select {
	case h.Register <- reg:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reg.Done
	return nil
}

// Leave unregisters c. It is safe to call after the hub has stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

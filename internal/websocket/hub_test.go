package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func join(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(nil, userID)
	require.NoError(t, h.Join(context.Background(), c))
	return c
}

func next(t *testing.T, c *Client) model.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.MessageCh:
		require.True(t, ok, "channel closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return model.Envelope{}
	}
}

func nextEvent(t *testing.T, c *Client, event string) model.Envelope {
	t.Helper()
	for {
		env := next(t, c)
		if env.Event == event {
			return env
		}
	}
}

func presence(t *testing.T, env model.Envelope) []string {
	t.Helper()
	require.Equal(t, model.EventOnlineUsers, env.Event)
	var ids []string
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	return ids
}

func TestHubFanOutToAllSessions(t *testing.T) {
	h := startHub(t)
	tab1 := join(t, h, "alice")
	tab2 := join(t, h, "alice")
	bob := join(t, h, "bob")

	env, err := model.NewEnvelope(model.EventMessageDeleted, "m1")
	require.NoError(t, err)
	h.Deliver("alice", env)

	for _, c := range []*Client{tab1, tab2} {
		got := nextEvent(t, c, model.EventMessageDeleted)
		assert.JSONEq(t, `"m1"`, string(got.Data))
	}

	// Bob only saw presence updates.
	for len(bob.MessageCh) > 0 {
		assert.Equal(t, model.EventOnlineUsers, (<-bob.MessageCh).Event)
	}
}

func TestHubPresence(t *testing.T) {
	h := startHub(t)

	alice := join(t, h, "alice")
	assert.Equal(t, []string{"alice"}, presence(t, next(t, alice)))
	assert.True(t, h.Online("alice"))

	bob := join(t, h, "bob")
	assert.Equal(t, []string{"alice", "bob"}, presence(t, next(t, alice)))
	assert.Equal(t, []string{"alice", "bob"}, presence(t, next(t, bob)))

	// A second tab gets the current list without a broadcast.
	bob2 := join(t, h, "bob")
	assert.Equal(t, []string{"alice", "bob"}, presence(t, next(t, bob2)))
	assert.Empty(t, alice.MessageCh)

	h.Leave(bob)
	_, ok := <-bob.MessageCh
	assert.False(t, ok)
	assert.True(t, h.Online("bob"))

	h.Leave(bob2)
	assert.Equal(t, []string{"alice"}, presence(t, next(t, alice)))
	assert.False(t, h.Online("bob"))
	assert.Equal(t, []string{"alice"}, h.OnlineUsers())

	// Leaving twice is harmless.
	h.Leave(bob2)
}

func TestHubDropsWhenSessionIsSlow(t *testing.T) {
	h := startHub(t)
	c := join(t, h, "alice")

	env, err := model.NewEnvelope(model.EventTyping, model.TypingEvent{SenderID: "bob", ReceiverID: "alice"})
	require.NoError(t, err)
	for i, n := 0, cap(c.MessageCh)*2; i < n; i++ {
		h.Deliver("alice", env)
	}

	// Deliver never blocks the caller on a full session.
	assert.Eventually(t, func() bool { return len(c.MessageCh) == cap(c.MessageCh) }, time.Second, 10*time.Millisecond)
}

func TestJoinAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := h.Join(context.Background(), NewClient(nil, "alice"))
	assert.ErrorIs(t, err, ErrHubStopped)
	h.Leave(NewClient(nil, "alice"))
	h.Deliver("alice", model.Envelope{Event: "x"})
}

type relay struct{ h *Hub }

func (r relay) Typing(_ context.Context, self, peer string) error {
	env, err := model.NewEnvelope(model.EventTyping, model.TypingEvent{SenderID: self, ReceiverID: peer})
	if err != nil {
		return err
	}
	r.h.Deliver(peer, env)
	return nil
}

func TestSessionOverWebSocket(t *testing.T) {
	h := startHub(t)
	h.SetInbound(relay{h})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(conn, r.URL.Query().Get("user"))
		c.SetTypingLimiter(10, time.Second)
		if err := h.Join(r.Context(), c); err != nil {
			conn.CloseNow()
			return
		}
		go c.WriteMessage(r.Context())
		c.ReadMessage(r.Context())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(user string) *websocket.Conn {
		u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
		conn, _, err := websocket.Dial(ctx, u, nil)
		require.NoError(t, err)
		return conn
	}
	read := func(conn *websocket.Conn, event string) model.Envelope {
		for {
			var env model.Envelope
			require.NoError(t, wsjson.Read(ctx, conn, &env))
			if env.Event == event {
				return env
			}
		}
	}

	alice := dial("alice")
	defer alice.CloseNow()
	read(alice, model.EventOnlineUsers)

	bob := dial("bob")
	defer bob.CloseNow()
	env := read(bob, model.EventOnlineUsers)
	var online []string
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Equal(t, []string{"alice", "bob"}, online)

	require.NoError(t, wsjson.Write(ctx, alice, map[string]any{
		"event": model.EventTyping,
		"data":  map[string]string{"receiverId": "bob"},
	}))
	env = read(bob, model.EventTyping)
	var typing model.TypingEvent
	require.NoError(t, json.Unmarshal(env.Data, &typing))
	assert.Equal(t, "alice", typing.SenderID)

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, ""))
	env = read(bob, model.EventOnlineUsers)
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Equal(t, []string{"bob"}, online)
}

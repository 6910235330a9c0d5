package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/broker"
	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/chat/chattest"
	"github.com/johndosdos/dmchat/internal/model"
	ws "github.com/johndosdos/dmchat/internal/websocket"
)

type testServer struct {
	router http.Handler
	store  *chattest.Store
	hub    *ws.Hub
	tokens auth.Tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub()
	go hub.Run(ctx)

	store := chattest.NewStore()
	svc := chat.NewService(store, broker.NewLocal(hub), hub, &chattest.Uploader{})
	hub.SetInbound(svc)

	tokens := auth.Tokens{Secret: "test-secret", Issuer: "dmchat", Lifetime: time.Hour}
	h := New(svc, hub, tokens, Options{})

	store.AddUser(model.User{ID: "alice", FullName: "Alice", Username: "alice"})
	store.AddUser(model.User{ID: "bob", FullName: "Bob", Username: "bob"})
	store.AddUser(model.User{ID: "carol", FullName: "Carol", Username: "carol"})

	return &testServer{
		router: h.Router(Routes{Health: ServeHealth(map[string]Pinger{"store": okPinger{}})}),
		store:  store,
		hub:    hub,
		tokens: tokens,
	}
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

func (s *testServer) do(t *testing.T, method, path, as string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		token, err := s.tokens.Make(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Dana", "username": "dana", "email": "dana@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[sessionResponse](t, rec)
	assert.Equal(t, "dana", created.Username)
	assert.NotEmpty(t, created.Token)
	assert.NotContains(t, rec.Body.String(), "hunter22")

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Dana", "username": "dana2", "email": "dana@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dana@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.AddCookie(session)
	check := httptest.NewRecorder()
	s.router.ServeHTTP(check, req)
	require.Equal(t, http.StatusOK, check.Code)
	assert.Equal(t, created.ID, decodeBody[model.User](t, check).ID)

	rec = s.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/messages/contacts", "/api/messages/chats", "/api/auth/check", "/ws", "/api/events"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestMessageEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/messages/send/bob", "alice", model.SendRequest{Text: "hi bob", ClientID: "temp-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decodeBody[model.Message](t, rec)
	assert.Equal(t, "temp-1", sent.ClientID)

	rec = s.do(t, http.MethodGet, "/api/messages/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]model.Message](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)

	rec = s.do(t, http.MethodGet, "/api/messages/chats", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chats := decodeBody[[]model.ChatSummary](t, rec)
	require.Len(t, chats, 1)
	assert.Equal(t, "alice", chats[0].PeerID)

	rec = s.do(t, http.MethodGet, "/api/messages/contacts", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.User](t, rec), 2)

	path := fmt.Sprintf("/api/messages/%s/reaction", sent.ID)
	rec = s.do(t, http.MethodPost, path, "bob", map[string]string{"emoji": "🔥"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[model.Message](t, rec).Reactions, 1)

	rec = s.do(t, http.MethodDelete, path, "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[model.Message](t, rec).Reactions)

	rec = s.do(t, http.MethodDelete, "/api/messages/"+sent.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/messages/"+sent.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		as     string
		body   any
		want   int
	}{
		{"empty message", http.MethodPost, "/api/messages/send/bob", "alice", model.SendRequest{Text: " "}, http.StatusBadRequest},
		{"unknown peer", http.MethodPost, "/api/messages/send/zed", "alice", model.SendRequest{Text: "hi"}, http.StatusNotFound},
		{"image too large", http.MethodPost, "/api/messages/send/bob", "alice", model.SendRequest{Image: strings.Repeat("A", chat.MaxImageBytes+1)}, http.StatusRequestEntityTooLarge},
		{"missing message", http.MethodDelete, "/api/messages/missing", "alice", nil, http.StatusNotFound},
		{"empty emoji", http.MethodPost, "/api/messages/missing/reaction", "alice", map[string]string{}, http.StatusBadRequest},
		{"history with ghost", http.MethodGet, "/api/messages/ghost", "alice", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[errorBody](t, rec).Message)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		token, err := s.tokens.Make("alice")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send/bob", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, errors.New("pq: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody[errorBody](t, rec).Message)
}

func TestDetailStripsSentinel(t *testing.T) {
	err := fmt.Errorf("text or image is required: %w", chat.ErrValidation)
	assert.Equal(t, "text or image is required", detail(err, chat.ErrValidation))
	assert.Equal(t, "not found", detail(chat.ErrNotFound, chat.ErrNotFound))
}

func TestSendReachesReceiverSession(t *testing.T) {
	s := newTestServer(t)

	bob := ws.NewClient(nil, "bob")
	require.NoError(t, s.hub.Join(context.Background(), bob))
	t.Cleanup(func() { s.hub.Leave(bob) })

	rec := s.do(t, http.MethodPost, "/api/messages/send/bob", "alice", model.SendRequest{Text: "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !(seen[model.EventNewMessage] && seen[model.EventChatListUpdate] && seen[model.EventNotificationAlert]) {
		select {
		case env := <-bob.MessageCh:
			seen[env.Event] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := ServeHealth(map[string]Pinger{"nats": okPinger{err: errors.New("no servers")}})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no servers")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/messages/contacts", "alice", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dmchat_http_request_duration_seconds")
}

func TestStreamSSE(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	token, err := s.tokens.Make("alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.hub.Online("alice") }, time.Second, 10*time.Millisecond)

	env, err := model.NewEnvelope(model.EventMessageDeleted, "m1")
	require.NoError(t, err)
	s.hub.Deliver("alice", env)

	// Presence arrives first; read frames until the delete shows up.
	sc := bufio.NewScanner(res.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok && event == model.EventMessageDeleted {
			data = v
			break
		}
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, `"m1"`, data)
}

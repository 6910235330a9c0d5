package chatstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/johndosdos/dmchat/internal/model"
)

var errNetwork = errors.New("network down")

type fakeAPI struct {
	mu       sync.Mutex
	sendFn   func(peerID string, req model.SendRequest) (model.Message, error)
	history  map[string][]model.Message
	summary  []model.ChatSummary
	contacts []model.User
	failWith error
	onFetch  func()
	sent     []model.SendRequest
	deleted  []string
}

func (f *fakeAPI) SendMessage(_ context.Context, peerID string, req model.SendRequest) (model.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return model.Message{}, errNetwork
	}
	return fn(peerID, req)
}

func (f *fakeAPI) FetchMessages(_ context.Context, peerID string) ([]model.Message, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]model.Message(nil), f.history[peerID]...), nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) SetReaction(_ context.Context, _, _ string) error { return f.failWith }

func (f *fakeAPI) ClearReaction(_ context.Context, _ string) error { return f.failWith }

func (f *fakeAPI) FetchContacts(_ context.Context) ([]model.User, error) {
	return f.contacts, f.failWith
}

func (f *fakeAPI) FetchChatSummaries(_ context.Context) ([]model.ChatSummary, error) {
	return f.summary, f.failWith
}

type fakeTransport struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[model.Handle]func(json.RawMessage)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[model.Handle]func(json.RawMessage))}
}

func (t *fakeTransport) Subscribe(event string, fn func(json.RawMessage)) model.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	h := model.Handle{Event: event, ID: t.nextID}
	t.subs[h] = fn
	return h
}

func (t *fakeTransport) Unsubscribe(h model.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, h)
}

func (t *fakeTransport) count(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for h := range t.subs {
		if h.Event == event {
			n++
		}
	}
	return n
}

func (t *fakeTransport) emit(event string, data any) {
	p, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	t.mu.Lock()
	var fns []func(json.RawMessage)
	for h, fn := range t.subs {
		if h.Event == event {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

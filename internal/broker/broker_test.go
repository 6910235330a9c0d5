package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/model"
)

type recorder struct {
	mu  sync.Mutex
	got map[string][]model.Envelope
}

func (r *recorder) Deliver(userID string, env model.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = make(map[string][]model.Envelope)
	}
	r.got[userID] = append(r.got[userID], env)
}

func TestLocalEmit(t *testing.T) {
	rec := &recorder{}
	bus := NewLocal(rec)

	err := bus.Emit(context.Background(), []string{"a", "b", "a", ""}, model.EventMessageDeleted, "m1")
	require.NoError(t, err)

	assert.Len(t, rec.got, 2)
	require.Len(t, rec.got["a"], 1)
	assert.Equal(t, model.EventMessageDeleted, rec.got["a"][0].Event)
	assert.JSONEq(t, `"m1"`, string(rec.got["a"][0].Data))
}

func TestLocalEmitEncodeError(t *testing.T) {
	bus := NewLocal(&recorder{})
	err := bus.Emit(context.Background(), []string{"a"}, "bad", make(chan int))
	assert.Error(t, err)
}

func TestDeliveryRoundTrip(t *testing.T) {
	env, err := model.NewEnvelope(model.EventTyping, model.TypingEvent{SenderID: "a", ReceiverID: "b"})
	require.NoError(t, err)
	p, err := json.Marshal(Delivery{To: []string{"b"}, Envelope: env})
	require.NoError(t, err)

	var d Delivery
	require.NoError(t, json.Unmarshal(p, &d))

	rec := &recorder{}
	deliver(rec, d)
	require.Len(t, rec.got["b"], 1)
	assert.JSONEq(t, `{"senderId":"a","receiverId":"b"}`, string(rec.got["b"][0].Data))
}

func TestNATSEmitWithoutJetStream(t *testing.T) {
	bus := NewNATS(nil, &recorder{})
	assert.Error(t, bus.Emit(context.Background(), []string{"a"}, model.EventTyping, nil))
}

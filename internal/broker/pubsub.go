package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/dmchat/internal/model"
)

// NATS publishes deliveries to JetStream and consumes them on every
// instance, so a user connected anywhere receives events emitted anywhere.
type NATS struct {
	js  jetstream.JetStream
	hub Deliverer
}

func NewNATS(js jetstream.JetStream, hub Deliverer) *NATS {
	return &NATS{js: js, hub: hub}
}

// EnsureStream creates the event stream if needed. Events are only useful
// while fresh, so the stream keeps a short window.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: streamSubjects,
		MaxAge:   time.Minute,
		Storage:  jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream [%s]: %w", StreamName, err)
	}
	return stream, nil
}

func (n *NATS) Emit(ctx context.Context, to []string, event string, data any) error {
	if n.js == nil {
		return fmt.Errorf("jetstream interface is nil")
	}

	env, err := model.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("could not encode %s payload: %w", event, err)
	}
	p, err := json.Marshal(Delivery{To: to, Envelope: env})
	if err != nil {
		return fmt.Errorf("could not encode delivery: %w", err)
	}

	_, err = n.js.Publish(ctx,
		SubjectUsers,
		p,
		jetstream.WithMsgID(uuid.NewString()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", SubjectUsers, err)
	}
	return nil
}

// Run consumes new deliveries until ctx is cancelled. Each instance gets an
// ordered ephemeral consumer so every instance sees every delivery.
func (n *NATS) Run(ctx context.Context, stream jetstream.Stream) error {
	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SubjectUsers},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var d Delivery
		if err := json.Unmarshal(msg.Data(), &d); err != nil {
			slog.Warn("could not decode delivery", "error", err)
			return
		}
		deliver(n.hub, d)
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		log.Printf("consumer error: %v", err)
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	<-ctx.Done()
	consumeCtx.Stop()
	return nil
}

// Package broker routes transport events to user sessions, either within the
// process or across instances through NATS JetStream.
package broker

import (
	"context"
	"fmt"

	"github.com/johndosdos/dmchat/internal/model"
)

// Deliverer hands an envelope to every local session of a user.
type Deliverer interface {
	Deliver(userID string, env model.Envelope)
}

// Delivery is the unit published on the bus.
type Delivery struct {
	To       []string       `json:"to"`
	Envelope model.Envelope `json:"envelope"`
}

// Local delivers events straight to an in-process hub.
type Local struct {
	hub Deliverer
}

func NewLocal(hub Deliverer) *Local {
	return &Local{hub: hub}
}

func (l *Local) Emit(_ context.Context, to []string, event string, data any) error {
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("could not encode %s payload: %w", event, err)
	}
	deliver(l.hub, Delivery{To: to, Envelope: env})
	return nil
}

func deliver(hub Deliverer, d Delivery) {
	seen := make(map[string]struct{}, len(d.To))
	for _, id := range d.To {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		hub.Deliver(id, d.Envelope)
	}
}

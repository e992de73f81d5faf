// Package eventbus delivers relayed outbox rows to in-process subscribers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iota-uz/iota-talent/pkg/eventbus"
	"github.com/iota-uz/iota-talent/pkg/outbox"
)

// DecodeFunc rebuilds the typed event stored under topic.
type DecodeFunc func(topic string, payload json.RawMessage) (any, error)

type Dispatcher struct {
	bus    eventbus.EventBusWithError
	decode DecodeFunc
}

func New(bus eventbus.EventBusWithError, decode DecodeFunc) *Dispatcher {
	return &Dispatcher{bus: bus, decode: decode}
}

// Dispatch publishes the decoded event as (ctx, event). A handler error or
// a topic nobody subscribes to fails the delivery so the relay retries it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	event, err := d.decode(msg.Meta.Topic, msg.Payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", msg.Meta.Topic, err)
	}
	return d.bus.PublishE(ctx, event)
}

package services

import (
	"context"
	"encoding/json"

	"github.com/iota-uz/iota-talent/pkg/outbox"
)

// record enqueues ev in the transaction bound to ctx when an outbox is
// configured. The row commits or rolls back with the change it describes.
func (o Options) record(ctx context.Context, ev Event) error {
	if o.Outbox == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return &PersistenceError{Op: "encode " + ev.Topic(), ErrCode: CodePersistence, Cause: err}
	}
	_, err = o.Outbox.Enqueue(ctx, outbox.Message{
		Topic:     ev.Topic(),
		EventID:   ev.Meta().EventID,
		SubjectID: ev.Subject(),
		Payload:   payload,
	})
	return storeError("enqueue "+ev.Topic(), err)
}

// deliver publishes ev in-process after commit, unless the outbox relay
// owns its delivery.
func (o Options) deliver(ctx context.Context, ev Event) {
	if o.Outbox != nil {
		return
	}
	o.publish(ctx, ev)
}

// emitting wraps a transaction body so the event built from its result is
// recorded before commit and kept in *out for deliver. event returns nil
// when nothing changed.
func emitting[T any](o Options, out *Event, fn func(context.Context) (T, error), event func(T) Event) func(context.Context) (T, error) {
	return func(txCtx context.Context) (T, error) {
		res, err := fn(txCtx)
		if err != nil {
			return res, err
		}
		ev := event(res)
		if ev == nil {
			return res, nil
		}
		if err := o.record(txCtx, ev); err != nil {
			var zero T
			return zero, err
		}
		*out = ev
		return res, nil
	}
}

package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/iota-talent/pkg/composables"
	"github.com/iota-uz/iota-talent/pkg/eventbus"
	"github.com/iota-uz/iota-talent/pkg/outbox"
)

const tracerName = "github.com/iota-uz/iota-talent/modules/talent/services"

// Transactor runs fn as one atomic unit. Implementations reuse a transaction
// already bound to ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// contextBinder is implemented by transactors that attach their store to ctx,
// so reads outside InTx reach the same database.
type contextBinder interface {
	Bind(ctx context.Context) context.Context
}

func bind(ctx context.Context, tx Transactor) context.Context {
	if b, ok := tx.(contextBinder); ok {
		return b.Bind(ctx)
	}
	return ctx
}

func inTx[T any](ctx context.Context, tx Transactor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := tx.InTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}

// Options carries the ambient collaborators shared by every service.
type Options struct {
	Logger    *logrus.Entry
	Publisher eventbus.EventBus
	// Now is the clock; employment changes take effect at Now.
	Now func() time.Time
	// Location decides which calendar day "today" is.
	Location *time.Location
	Tracer   trace.Tracer
	// Outbox, when set, takes over delivery of durable events: they are
	// written in the owning transaction and relayed later.
	Outbox outbox.Publisher
}

func (o Options) withDefaults(component string) Options {
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	o.Logger = o.Logger.WithField("component", component)
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}

func (o Options) log(ctx context.Context) *logrus.Entry {
	return composables.UseLogger(ctx, o.Logger)
}

func (o Options) logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	o.log(ctx).WithFields(fields).Log(level, msg)
}

// today is the current calendar day in the configured location, as UTC midnight.
func (o Options) today() time.Time {
	y, m, d := o.Now().In(o.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (o Options) publish(ctx context.Context, event any) {
	if o.Publisher == nil {
		return
	}
	o.Publisher.Publish(ctx, event)
}

package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type greeter struct{ name string }

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterServices(&greeter{name: "talent"})

	svc := app.Service(greeter{}).(*greeter)
	require.Equal(t, "talent", svc.name)
	require.Len(t, app.Services(), 1)
	require.Panics(t, func() { app.Service(struct{}{}) })
}

func TestApplication_ShutdownRunsInReverse(t *testing.T) {
	app := New(&ApplicationOptions{})
	var order []int
	app.RegisterShutdown(func(context.Context) error { order = append(order, 1); return errors.New("first registered") })
	app.RegisterShutdown(func(context.Context) error { order = append(order, 2); return errors.New("last registered") })

	err := app.Shutdown(context.Background())
	require.EqualError(t, err, "last registered")
	require.Equal(t, []int{2, 1}, order)
}

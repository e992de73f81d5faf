package modules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/pkg/application"
)

type stubModule struct {
	name string
	err  error
	seen *[]string
}

func (m stubModule) Register(application.Application) error {
	*m.seen = append(*m.seen, m.name)
	return m.err
}

func (m stubModule) Name() string { return m.name }

func TestLoad_StopsAtFirstFailure(t *testing.T) {
	var seen []string
	app := application.New(&application.ApplicationOptions{})

	err := Load(app,
		stubModule{name: "talent", seen: &seen},
		stubModule{name: "broken", err: errors.New("no pool"), seen: &seen},
		stubModule{name: "never", seen: &seen},
	)
	require.ErrorContains(t, err, "register module broken: no pool")
	require.Equal(t, []string{"talent", "broken"}, seen)
}

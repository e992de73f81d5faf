package modules

import (
	"fmt"

	"github.com/iota-uz/iota-talent/pkg/application"
)

// Load registers modules in order and stops at the first failure.
func Load(app application.Application, mods ...application.Module) error {
	for _, m := range mods {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}
	return nil
}

package outbox

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid outbox configuration")

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

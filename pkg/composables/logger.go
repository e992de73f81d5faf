package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request-scoped logger, or fallback when none is set.
func UseLogger(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if ctx != nil {
		switch typed := ctx.Value(constants.LoggerKey).(type) {
		case *logrus.Entry:
			if typed != nil {
				return typed
			}
		case *logrus.Logger:
			if typed != nil {
				return logrus.NewEntry(typed)
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development mode switches to the console
// encoder with debug level enabled.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}

// NewNop returns a no-op logger for tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

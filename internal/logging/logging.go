// Package logging builds the process logger. The backend's log option
// controls verbosity; scrubbing happens before fields reach the logger, at
// the session layer's chokepoint.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
)

// New constructs a zap logger for the given log mode and environment.
// LogOff keeps only warnings and errors; every other mode logs debug.
func New(mode ldap.LogMode, environment string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if mode.Chatty() {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	return cfg.Build()
}

// Package logging centralizes zap logger construction so every subsystem
// logs under its component name (set as the zap logger name).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the base logger for the given level ("debug", "info", "warn",
// "error"). Unrecognized levels fall back to "info".
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	return cfg.Build()
}

// Named returns a SugaredLogger tagged with the given component name.
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}

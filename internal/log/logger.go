// Package log builds the zap loggers the engine uses. Everything logs
// through the sugared key/value API (Infow/Warnw/Errorw); exhausted
// retries additionally carry a terminal=true field so monitoring can
// alert on them separately from per-attempt warnings.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger for the runtime environment from BC_ENV.
// "prod" and "staging" emit JSON at info level for ingestion; anything
// else gets colored console output at debug level.
func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config
	switch env {
	case "prod", "staging":
		config = zap.NewProductionConfig()
	default:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", env, err)
	}
	return logger, nil
}

// NewSugar wraps NewLogger for the sugared API the codebase uses.
func NewSugar(env string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

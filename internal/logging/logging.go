// Package logging builds the zap loggers used by the strata command.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Development bool      // console encoding instead of JSON
	Output      io.Writer // defaults to stderr; stdout carries command output
}

// New builds a logger writing to cfg.Output at cfg.Level. An empty level
// means info.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var encoder zapcore.Encoder
	if cfg.Development {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))
	logger := zap.New(core)
	if cfg.Development {
		logger = logger.WithOptions(zap.AddCaller(), zap.Development())
	}
	return logger.Named("strata"), nil
}

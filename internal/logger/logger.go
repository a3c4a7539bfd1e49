// Package logger builds the zap loggers used by the binaries.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Setup creates a zap logger at logLevel. logFormat "console" gives
// human-readable output; anything else logs JSON.
func Setup(logLevel, logFormat string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	if logFormat == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		cfg.Encoding = "json"
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg.Level = level

	// The CLI prints signatures on stdout; logs must stay on stderr.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

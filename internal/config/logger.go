package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from "logging.level" (debug, info,
// warn, error) and "logging.format". Format "json" is the production
// encoder; "console" is the human-readable development encoder with
// ISO 8601 timestamps. Components derive their own loggers with Named.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	raw := v.GetString("logging.level")
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
	}

	var cfg zap.Config
	switch format := v.GetString("logging.format"); format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}

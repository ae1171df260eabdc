package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is shared by every logger built through New so a config reload can
// change verbosity without rebuilding loggers.
var Level = zap.NewAtomicLevelAt(zap.InfoLevel)

// New builds the process logger. "debug" switches to the human readable
// development encoder.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(orDefault(level))))
	if err != nil {
		return nil, err
	}
	Level.SetLevel(lvl)

	var cfg zap.Config
	if lvl == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = Level
	return cfg.Build()
}

// SetLevel changes the level of all loggers built by New.
func SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(orDefault(level))))
	if err != nil {
		return err
	}
	Level.SetLevel(lvl)
	return nil
}

func orDefault(level string) string {
	if strings.TrimSpace(level) == "" {
		return "info"
	}
	return level
}

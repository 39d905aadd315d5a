package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON output at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	if lvl.Level() == zap.DebugLevel {
		cfg.Development = true
		cfg.Sampling = nil
	}
	return cfg.Build()
}

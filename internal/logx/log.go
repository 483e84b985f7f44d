package logx

import (
	"fmt"

	"go.uber.org/zap"
)

const prodEnv = "prod"

// New builds the process logger. debug lowers the level to Debug for
// either environment.
func New(env string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if env == prodEnv {
		cfg = zap.NewProductionConfig()
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("new %s logger: %w", env, err)
	}
	return l, nil
}

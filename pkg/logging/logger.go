package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New constructs the process-wide zap logger. Env "local" gets the
// development console encoder; everything else logs production JSON.
func New(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

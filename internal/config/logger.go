package config

import (
	"go.uber.org/zap"
)

// Logger builds the process logger for APP_ENV, named after the binary.
func (c Config) Logger(name string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if c.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return logger.Named(name), nil
}

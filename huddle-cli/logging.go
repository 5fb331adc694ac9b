package huddlecli

import (
	"os"

	"github.com/rs/zerolog"
)

func Logger(service Service) zerolog.Logger {
	level, err := zerolog.ParseLevel(CommonOpts.LogLevel)
	if err != nil || CommonOpts.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service.Name).
		Str("version", service.Version).
		Logger()
}

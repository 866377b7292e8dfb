package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger for the CLI. The default level
// is error so the CLI's own output stays clean; LOG_LEVEL overrides it.
func Init() {
	initWithDefault(zerolog.ErrorLevel)
}

// InitServer configures logging for the relay daemon, which defaults to
// info so room lifecycle is visible in production logs.
func InitServer() {
	initWithDefault(zerolog.InfoLevel)
}

func initWithDefault(level zerolog.Level) {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch strings.ToLower(l) {
		case "dev", "development", "debug":
			level = zerolog.DebugLevel
		case "info":
			level = zerolog.InfoLevel
		case "warn", "warning":
			level = zerolog.WarnLevel
		case "error", "production", "prod":
			level = zerolog.ErrorLevel
		}
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(level)
}

// Package logger provides a global logger for the application
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Flags are the command line overrides of the environment log level.
type Flags struct {
	Debug bool
	Trace bool
	Info  bool
}

// LevelFor resolves the log level from ENVIRONMENT and the command line flags.
// Flags win over the environment.
func LevelFor(environment string, flags Flags) zerolog.Level {
	var logLevel zerolog.Level
	switch strings.ToLower(environment) {
	case "dev", "test":
		logLevel = zerolog.TraceLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	if flags.Debug {
		logLevel = zerolog.DebugLevel
	} else if flags.Trace {
		logLevel = zerolog.TraceLevel
	} else if flags.Info {
		logLevel = zerolog.InfoLevel
	}
	return logLevel
}

func initLogger(out io.Writer, flags Flags) {
	envErr := godotenv.Load()

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out}).With().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if environment == "" {
		environment = "prod"
	}

	logLevel := LevelFor(environment, flags)
	zerolog.SetGlobalLevel(logLevel)

	if envErr != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}
	log.Debug().Str("environment", environment).Str("level", logLevel.String()).Msg("logger initialized")
}

// Init initializes the logger with the configuration from the environment
// and command line flags.
// It sets up the global logger to use zerolog with console output on stderr.
// Example usage:
//
//	logger.Init(logger.Flags{Debug: debug}) <- inside whichever main() function in your entrypoint
//
// Then, `go run ./cmd/mmstats 17153 --debug`
func Init(flags Flags) {
	initLogger(os.Stderr, flags)
}

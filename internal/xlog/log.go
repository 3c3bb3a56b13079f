// Package xlog provides the structured build-time logger shared by the
// solver, declutter loop and pulsifier. Execution time (plan.State.Run)
// never logs on the hot path.
package xlog

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-level logger. Library code logs sparingly and never
// tags Caller() the way an application binary would.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	Log = Log.Level(zerolog.WarnLevel)
}

// SetLevel adjusts the minimum level logged, e.g. zerolog.DebugLevel to
// observe solver passes and declutter rewrites during development.
func SetLevel(level zerolog.Level) {
	Log = Log.Level(level)
}

package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is usable before Init is called; it writes JSON to stdout.
var Log = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init initializes the global logger
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "development" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Caller().
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

// Disable silences the global logger. Tests use it to keep output readable.
func Disable() {
	Log = zerolog.Nop()
}

func Info() *zerolog.Event {
	return Log.Info()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Fatal() *zerolog.Event {
	return Log.Fatal()
}

package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"photo-guess/internal/config"
)

// New builds the process logger for env. Local runs get a console writer,
// everything else writes JSON lines.
func New(env string) zerolog.Logger {
	return newWithWriter(env, os.Stdout)
}

func newWithWriter(env string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	switch env {
	case config.EnvLocal:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	case config.EnvDev:
		return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	default:
		return zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
}

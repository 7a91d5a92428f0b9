// Package log builds the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger in development and a JSON logger in
// production.
func New(environment string) zerolog.Logger {
	return NewWithWriter(environment, os.Stdout)
}

// NewWithWriter is New writing to out instead of stdout.
func NewWithWriter(environment string, out io.Writer) zerolog.Logger {
	var w io.Writer = out
	level := zerolog.DebugLevel
	if environment == "production" {
		level = zerolog.InfoLevel
	} else {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("env", environment).
		Logger()
}

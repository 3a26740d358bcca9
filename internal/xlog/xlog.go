// Package xlog provides the structured logger shared by every subsystem:
// a package-level default, per-subsystem children via "with fields", and
// colorized console output, backed by zerolog.
package xlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// New builds a colorized console logger writing to w. ANSI colors are
// emitted whether or not w is a terminal.
func New(w io.Writer, component string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return zerolog.New(console).With().Timestamp().Str("component", component).Logger()
}

// Default is the process-wide logger used by components that were not
// handed an explicit one.
var Default = New(os.Stdout, "netdrop")

// For returns a child logger tagged with component, derived from Default.
func For(component string) zerolog.Logger {
	return Default.With().Str("component", component).Logger()
}

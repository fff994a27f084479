// Package logging wires github.com/joeycumines/logiface to a zerolog
// backend (github.com/joeycumines/izerolog), the structured-logging stack
// used throughout the teacher repository (e.g. sql/export's
// `x.Logger.Info().Str(...).Log(...)` fluent calls).
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Level names recognized by ParseLevel, mirroring the syslog-style levels
// logiface.Level encodes.
const (
	LevelDebug   = `debug`
	LevelInfo    = `info`
	LevelWarning = `warning`
	LevelError   = `error`
)

// New constructs a *logiface.Logger writing newline-delimited JSON to w, at
// the given level. An unrecognized level falls back to info.
func New(w io.Writer, level string) *logiface.Logger[logiface.Event] {
	z := zerolog.New(w).With().Timestamp().Logger()

	return izerolog.L.New(
		izerolog.L.WithZerolog(z),
		izerolog.L.WithLevel(parseLevel(level)),
	).Logger()
}

// NewDefault returns a logger writing to stderr at info level, the same
// logger cmd/varbatchd builds through New when ANNOTATOR_LOG_LEVEL is unset.
func NewDefault() *logiface.Logger[logiface.Event] {
	return New(os.Stderr, LevelInfo)
}

func parseLevel(level string) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarning:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

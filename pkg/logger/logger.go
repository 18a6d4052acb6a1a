// Package logger builds the slog loggers used across escrowd. Commands log
// pretty output to the terminal; escrowd serve also keeps a JSON log file.
// The HTTP and MCP servers log through zap, see NewZap.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level     slog.Level
	format    Format
	source    bool
	component string
	writers   []io.Writer
}

// New builds a *slog.Logger from opts. The default is info level text on
// stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	hopts := &slog.HandlerOptions{Level: c.level, AddSource: c.source}

	var handler slog.Handler
	switch c.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, hopts)
	case FormatPretty:
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
	default:
		handler = slog.NewTextHandler(w, hopts)
	}

	l := slog.New(handler)
	if c.component != "" {
		l = l.With("component", c.component)
	}
	return l
}

// NewLogger is the command-line default: pretty output, debug level on demand.
func NewLogger(debug bool) *slog.Logger {
	return New(WithDebug(debug), WithFormat(FormatPretty))
}

// NewFileLogger writes JSON records to w, tagged with component.
func NewFileLogger(w io.Writer, component string, debug bool) *slog.Logger {
	return New(WithDebug(debug), WithFormat(FormatJSON), WithWriter(w), WithComponent(component))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

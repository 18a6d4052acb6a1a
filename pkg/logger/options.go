package logger

import (
	"io"
	"log/slog"
)

// Format selects the handler New builds.
type Format int

const (
	// FormatText is slog's key=value handler.
	FormatText Format = iota

	// FormatJSON writes one JSON object per record. escrowd serve uses it
	// for .escrowd/escrowd.log.
	FormatJSON

	// FormatPretty is the colorized charmbracelet/log handler for terminals.
	FormatPretty
)

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug when debug is true.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithFormat picks the output handler. Defaults to FormatText.
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithWriter replaces stdout as the destination. Several writers are
// combined with io.MultiWriter.
func WithWriter(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithComponent tags every record with component=name.
func WithComponent(name string) Option {
	return func(c *config) {
		c.component = name
	}
}

// WithSource includes file:line in each record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

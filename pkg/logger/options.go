package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithLevel sets the minimum level from its name: debug, info, warn or
// error. Unknown names leave the level unchanged.
func WithLevel(name string) Option {
	return func(c *config) {
		var l slog.Level
		if err := l.UnmarshalText([]byte(name)); err == nil {
			c.level = l
		}
	}
}

// WithPretty selects the colorized terminal handler.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects the JSON handler. It takes precedence over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithPrefix labels every line of the pretty handler.
func WithPrefix(prefix string) Option {
	return func(c *config) { c.prefix = prefix }
}

// WithWriter replaces the output, stdout by default.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters writes every record to each of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource reports the calling file and line.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

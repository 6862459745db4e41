// Package obs provides the structured logging and metrics every other
// package is threaded with: a thin zerolog wrapper and a set of
// prometheus collectors (§AMBIENT STACK).
package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the component-scoping convention
// used throughout the server: each subsystem gets its own child logger
// via WithComponent rather than passing raw string tags around.
type Logger struct {
	zlog zerolog.Logger
}

// Config controls how NewLogger builds its output.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool
	Output io.Writer
}

// NewLogger builds a Logger from cfg. Pretty selects a human-readable
// console writer for local development; the default is line-delimited
// JSON suitable for log aggregation in production.
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).With().Timestamp().Str("service", "wosim").Logger()
	return &Logger{zlog: zlog}
}

// WithComponent returns a child logger tagging every event with
// component, e.g. WithComponent("storage") or WithComponent("tick").
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", component).Logger()}
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// LogTick records one completed simulation tick, matching the
// structured per-operation logging convention used for storage and
// transport events.
func (l *Logger) LogTick(tick uint64, duration time.Duration, skipped bool) {
	event := l.zlog.Debug()
	if skipped {
		event = l.zlog.Warn()
	}
	event.
		Uint64("tick", tick).
		Dur("duration_ms", duration).
		Bool("skipped", skipped).
		Msg("tick completed")
}

// LogSnapshot records one completed storage snapshot commit.
func (l *Logger) LogSnapshot(version uint64, duration time.Duration) {
	l.zlog.Debug().
		Uint64("version", version).
		Dur("duration_ms", duration).
		Msg("snapshot committed")
}

// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers for the registry, the IVF rebuild
// scheduler, and the persistence checkpoint loop.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once by Init.
var Logger zerolog.Logger

// Level names accepted by Init's Config.Level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Config controls the global logger's level and output shape.
type Config struct {
	// Level is one of DebugLevel, InfoLevel, WarnLevel, ErrorLevel.
	// Defaults to InfoLevel for any other value.
	Level string
	// JSONOutput selects structured JSON lines over a human-readable
	// console writer.
	JSONOutput bool
	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// Init configures the global Logger. Safe to call once at process start;
// later calls replace the global logger wholesale.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a "component" field.
// Conventional component names: "registry", "ivf", "persistence", "search".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCollection returns a child logger additionally tagged with the
// collection name a log line concerns.
func WithCollection(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("collection", name).Logger()
}

func init() {
	Init(Config{Level: InfoLevel})
}

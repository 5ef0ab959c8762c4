package core

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog.Logger from cfg. Output defaults to stderr so
// stdout stays reserved for query results and the MCP stdio transport.
// The "auto" format writes console output to a terminal and JSON otherwise.
func NewLogger(cfg LogConfig) zerolog.Logger {
	f := os.Stderr
	if strings.ToLower(cfg.Output) == "stdout" {
		f = os.Stdout
	}
	if strings.ToLower(cfg.Format) == "auto" {
		cfg.Format = "json"
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			cfg.Format = "console"
		}
	}
	return newLogger(f, cfg)
}

func newLogger(w io.Writer, cfg LogConfig) zerolog.Logger {
	var logger zerolog.Logger
	if strings.ToLower(cfg.Format) == "json" {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: CLIDatetimeFmt})
	}
	return logger.With().Timestamp().Logger().Level(ParseLogLevel(cfg.Level))
}

// ParseLogLevel converts a string log level to zerolog.Level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

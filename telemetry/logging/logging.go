// Package logging configures the module's structured logging. All checker
// diagnostics flow through log/slog; the VERISTATE_LOG environment variable
// selects the level for processes that do not wire a logger explicitly.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// EnvVar controls diagnostic verbosity: error, warn, info (default), debug.
const EnvVar = "VERISTATE_LOG"

// LevelFromEnv parses the log level environment variable.
func LevelFromEnv() slog.Level {
	return ParseLevel(os.Getenv(EnvVar))
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger at the environment-selected level writing to
// stderr.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: LevelFromEnv()}))
}

// Nop returns a logger that discards everything; used as the default inside
// the checker so embedding it stays silent unless asked.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

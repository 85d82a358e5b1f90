package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"trace":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" Debug ": slog.LevelDebug,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "debug")
	assert.Equal(t, slog.LevelDebug, LevelFromEnv())
	t.Setenv(EnvVar, "")
	assert.Equal(t, slog.LevelInfo, LevelFromEnv())
}

func TestNopLoggerDiscards(t *testing.T) {
	log := Nop()
	assert.False(t, log.Enabled(nil, slog.LevelError))
}

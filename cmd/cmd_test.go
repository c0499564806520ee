package cmd

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/config"
)

func TestExecuteUnknownCommand(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"gen-bionic", "bogus"}
	err := Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestExecuteHelp(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"gen-bionic", "help"}
	assert.NoError(t, Execute())

	os.Args = []string{"gen-bionic"}
	assert.NoError(t, Execute())
}

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := newLogger(&config.Config{LogLevel: tc.level})
		ctx := t.Context()
		assert.Equal(t, tc.want == slog.LevelDebug, logger.Enabled(ctx, slog.LevelDebug), "level %q", tc.level)
		assert.True(t, logger.Enabled(ctx, slog.LevelError))
	}
}

package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/amacdonaldai/gen-bionic/internal/log"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := log.NewWithWriter(&buf, log.Config{})

		logger.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "key=value") {
			t.Errorf("unexpected text output: %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := log.NewWithWriter(&buf, log.Config{JSON: true})

		logger.Info("hello", "key", "value")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if entry["msg"] != "hello" || entry["key"] != "value" {
			t.Errorf("unexpected JSON entry: %v", entry)
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelWarn})

		logger.Debug("suppressed")
		logger.Info("suppressed")
		logger.Warn("visible")

		out := buf.String()
		if strings.Contains(out, "suppressed") {
			t.Errorf("level filtering failed: %q", out)
		}
		if !strings.Contains(out, "visible") {
			t.Errorf("warn entry missing: %q", out)
		}
	})
}

func TestNewNop(t *testing.T) {
	t.Parallel()

	logger := log.NewNop()
	// Must not panic; output is discarded.
	logger.Info("discarded")
	logger.Error("discarded")
}

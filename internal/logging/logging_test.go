package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshchat/internal/config"
)

type errorWriter struct {
	err error
}

func (w errorWriter) Write([]byte) (int, error) {
	return 0, w.err
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTeeWriterContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newTeeWriter(errorWriter{err: errors.New("broken stdout")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestTeeWriterPropagatesTotalFailure(t *testing.T) {
	w := newTeeWriter(errorWriter{err: errors.New("a")}, errorWriter{err: errors.New("b")})
	if _, err := w.Write([]byte("x")); err == nil {
		t.Fatalf("expected error when every destination fails")
	}
}

func TestConfigureWritesToLogFile(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "meshchat.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure: %v", err)
	}

	m.Logger("test").Debug("file sink check", "k", "v")

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "file sink check") {
		t.Fatalf("log file missing record: %q", raw)
	}
	if !strings.Contains(string(raw), "component=test") {
		t.Fatalf("component attribute missing: %q", raw)
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "shout"}, ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLoggerBeforeConfigure(t *testing.T) {
	m := NewManager()
	if m.Logger("boot") == nil {
		t.Fatalf("manager must hand out a logger before Configure")
	}
}

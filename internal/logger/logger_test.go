package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line written at normal level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[INF] ") || !strings.Contains(buf.String(), "shown 2") {
		t.Fatalf("expected info line, got %q", buf.String())
	}

	log.SetLevel(LevelVerbose)
	log.Debug("visible")
	if !strings.Contains(buf.String(), "[DBG] ") {
		t.Fatalf("expected debug line after SetLevel, got %q", buf.String())
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"off":     LevelOff,
		"VERBOSE": LevelVerbose,
		"debug":   LevelVerbose,
		"":        LevelNormal,
		"weird":   LevelNormal,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var log *Logger
	log.Info("no panic")
}

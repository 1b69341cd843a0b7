package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"ERROR", LogLevelError, true},
		{"warn", LogLevelWarn, true},
		{" Debug ", LogLevelDebug, true},
		{"TRACE", LogLevelTrace, true},
		{"verbose", LogLevelInfo, false},
		{"", LogLevelInfo, false},
	}
	for _, c := range cases {
		got, ok := ParseLogLevel(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v, want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestLogLevelString_RoundTrip(t *testing.T) {
	for _, level := range []LogLevel{LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace} {
		parsed, ok := ParseLogLevel(level.String())
		if !ok || parsed != level {
			t.Errorf("ParseLogLevel(%q) = %v, %v", level.String(), parsed, ok)
		}
	}
}

func TestLogger_LevelGating(t *testing.T) {
	prev := log.Writer()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	l := NewLogger(LogLevelWarn)
	l.Error("boom")
	l.Warn("careful")
	l.Info("chatty")
	l.Debug("noisy")

	out := buf.String()
	if !strings.Contains(out, "[ERROR] boom") || !strings.Contains(out, "[WARN] careful") {
		t.Errorf("missing expected lines in %q", out)
	}
	if strings.Contains(out, "chatty") || strings.Contains(out, "noisy") {
		t.Errorf("levels above WARN must be suppressed, got %q", out)
	}
}

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestInitAndLog(t *testing.T) {
	var buf bytes.Buffer
	Init("text", LevelDebug, &buf)

	Info("Test", "hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Errorf("Expected log output to contain message, got: %s", out)
	}
	if !strings.Contains(out, "subsystem=Test") {
		t.Errorf("Expected log output to contain subsystem, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init("text", LevelWarn, &buf)

	Debug("Test", "should not appear")
	Info("Test", "should not appear either")
	Warn("Test", "warn message")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("Expected debug/info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("Expected warn message in output, got: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", LevelInfo, &buf)

	Info("Test", "structured")

	out := buf.String()
	if !strings.Contains(out, `"subsystem":"Test"`) {
		t.Errorf("Expected JSON output with subsystem attribute, got: %s", out)
	}
}

func TestTruncateSessionID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "short"},
		{"12345678", "12345678"},
		{"123456789", "12345678..."},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaa..."},
	}

	for _, tt := range tests {
		if got := TruncateSessionID(tt.input); got != tt.expected {
			t.Errorf("TruncateSessionID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

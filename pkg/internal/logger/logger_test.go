package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" INFO ", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelInfo, false},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v/%v, want %v/%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWriterLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelWarn).With("session")

	log.Info("hidden %d", 1)
	log.Warn("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["message"] != "shown 2" || entry["level"] != "warn" || entry["component"] != "session" || entry["app"] != "obex" {
		t.Errorf("unexpected entry %v", entry)
	}

	buf.Reset()
	log.SetLevel(LevelDebug)
	log.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("SetLevel(Debug) did not enable debug output")
	}
}

func TestDefaultLogger(t *testing.T) {
	prev := GetDefault()
	defer SetDefault(prev)

	SetDefault(nil)
	if _, ok := GetDefault().(*NoOpLogger); !ok {
		t.Errorf("SetDefault(nil) should install a NoOpLogger")
	}

	custom := NewNoOpLogger()
	SetDefault(custom)
	if OrDefault(nil) != Logger(custom) {
		t.Errorf("OrDefault(nil) should return the default")
	}
	other := NewNoOpLogger()
	if OrDefault(other) != Logger(other) {
		t.Errorf("OrDefault should keep a non-nil logger")
	}
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelDebug)

	SetFrameDebug(false)
	Frame(log, "TX", []byte{0x80, 0x00, 0x03})
	if buf.Len() != 0 {
		t.Errorf("Frame logged with frame debug off")
	}

	SetFrameDebug(true)
	defer SetFrameDebug(false)
	if !FrameDebugEnabled() {
		t.Fatal("FrameDebugEnabled = false")
	}
	Frame(log, "TX", []byte{0x80, 0x00, 0x03})
	if !strings.Contains(buf.String(), "TX 3 bytes") {
		t.Errorf("Frame output = %q", buf.String())
	}
}

func TestForComponent(t *testing.T) {
	var buf bytes.Buffer
	log := ForComponent(NewWriterLogger(&buf, LevelInfo), "server")
	log.Info("ready")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["component"] != "server" {
		t.Errorf("component = %v, want server", entry["component"])
	}

	noop := NewNoOpLogger()
	if ForComponent(noop, "client") != Logger(noop) {
		t.Errorf("ForComponent should keep loggers it cannot tag")
	}
}

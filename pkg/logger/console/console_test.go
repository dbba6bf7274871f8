package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{name: "info level hides debug", debug: false, wantDebug: false},
		{name: "debug level", debug: true, wantDebug: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewConsoleLogger(ConsoleLoggerParams{Debug: tc.debug, Writer: &buf})
			l.Debug("chunk answered", "chunk", 3)
			l.Info("request finished")

			out := buf.String()
			if got := strings.Contains(out, "chunk answered"); got != tc.wantDebug {
				t.Fatalf("debug output present = %v, want %v: %q", got, tc.wantDebug, out)
			}
			if !strings.Contains(out, "request finished") {
				t.Fatalf("info output missing: %q", out)
			}
		})
	}
}

func TestConsoleLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{JSON: true, Writer: &buf})
	l.Warn("backend failed", "backend", "gemini")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("output is not json: %v: %q", err, buf.String())
	}
	if line["msg"] != "backend failed" || line["backend"] != "gemini" {
		t.Fatalf("unexpected json line: %v", line)
	}
}

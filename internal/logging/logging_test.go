package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormatHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", FormatJSON)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debug().Msg("hidden")
	log.Info().Str("chain", "base").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["message"] != "visible" || entry["chain"] != "base" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestConsoleIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Warn().Msg("careful")
	out := buf.String()
	if !strings.Contains(out, "careful") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestInvalidSettings(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", FormatJSON); err == nil {
		t.Fatal("expected invalid level to fail")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatal("expected invalid format to fail")
	}
}

package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/agent-wallet/internal/config"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := Envelope{
		Version: EnvelopeVersion,
		Success: true,
		Data:    []map[string]any{{"chain": "base", "balance": "1.5"}},
		Meta:    Meta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"balance"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["balance"] != "1.5" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["chain"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectNestedField(t *testing.T) {
	env := Envelope{
		Success: true,
		Data: map[string]any{
			"address":         "0xabc",
			"native_currency": map[string]any{"symbol": "ETH", "decimals": 18},
		},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"native_currency.symbol"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out["native_currency.symbol"] != "ETH" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestRenderPlainFlattens(t *testing.T) {
	env := Envelope{
		Success: true,
		Data: map[string]any{
			"address":         "0xabc",
			"native_currency": map[string]any{"symbol": "ETH", "decimals": 18},
		},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line != "address=0xabc native_currency.decimals=18 native_currency.symbol=ETH" {
		t.Fatalf("unexpected plain output: %q", line)
	}
}

func TestRenderPlainEnvelopeIncludesError(t *testing.T) {
	env := Envelope{
		Success: false,
		Error:   &ErrorBody{Code: 13, Type: "unknown_chain", Message: "unknown chain \"atlantis\""},
		Meta:    Meta{Command: "balance native"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "error.type=unknown_chain") || !strings.Contains(out, "meta.command=balance native") {
		t.Fatalf("unexpected plain envelope: %s", out)
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"token", "Token", " AUTHORIZATION ", "auth_token", "secret"} {
		if !IsSensitive(key) {
			t.Fatalf("expected %q to be sensitive", key)
		}
	}
	for _, key := range []string{"service", "env", "method", "addr", ""} {
		if IsSensitive(key) {
			t.Fatalf("expected %q to pass through", key)
		}
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("hunter2"); got != RedactedValue {
		t.Fatalf("MaskValue = %q, want %q", got, RedactedValue)
	}
	if got := MaskValue("   "); got != "   " {
		t.Fatalf("empty value should pass through, got %q", got)
	}
}

func TestHandlerMasksSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: replaceAttr}))

	const secret = "super-secret-bearer"
	logger.Info("auth configured", slog.String("token", secret), slog.String("addr", ":8645"))

	if strings.Contains(buf.String(), secret) {
		t.Fatalf("log output leaked the token: %s", buf.String())
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["token"] != RedactedValue {
		t.Fatalf("token = %v, want %q", line["token"], RedactedValue)
	}
	if line["addr"] != ":8645" {
		t.Fatalf("addr = %v, want :8645", line["addr"])
	}
	if line["message"] != "auth configured" {
		t.Fatalf("message = %v", line["message"])
	}
	if line["severity"] != "INFO" {
		t.Fatalf("severity = %v", line["severity"])
	}
}

func TestMaskFieldAlwaysMasks(t *testing.T) {
	attr := MaskField("rpcCredential", "value")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("MaskField value = %q, want %q", attr.Value.String(), RedactedValue)
	}
}

package logging

import (
	"strings"
	"testing"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short stays intact", "hello", "hello"},
		{"newlines flattened", "line one\nline two", "line one line two"},
		{"long content truncated", strings.Repeat("a", 50), strings.Repeat("a", 24) + "..."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.content); got != tt.want {
				t.Errorf("Preview(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestIsSensitiveField(t *testing.T) {
	sensitive := []string{"password", "user_password", "API_KEY", "Authorization", "session_id"}
	for _, name := range sensitive {
		if !IsSensitiveField(name) {
			t.Errorf("IsSensitiveField(%q) = false, want true", name)
		}
	}

	safe := []string{"conversation_id", "sender", "kind"}
	for _, name := range safe {
		if IsSensitiveField(name) {
			t.Errorf("IsSensitiveField(%q) = true, want false", name)
		}
	}
}

func TestRedactMap(t *testing.T) {
	in := map[string]any{
		"conversation_id": "c1",
		"auth_token":      "abc123",
		"meta": map[string]any{
			"password": "hunter2",
			"shop":     "s1",
		},
	}

	out := RedactMap(in)

	if out["conversation_id"] != "c1" {
		t.Errorf("conversation_id changed: %v", out["conversation_id"])
	}
	if out["auth_token"] != RedactedValue {
		t.Errorf("auth_token not redacted: %v", out["auth_token"])
	}
	nested := out["meta"].(map[string]any)
	if nested["password"] != RedactedValue {
		t.Errorf("nested password not redacted: %v", nested["password"])
	}
	if nested["shop"] != "s1" {
		t.Errorf("nested shop changed: %v", nested["shop"])
	}
	if in["auth_token"] != "abc123" {
		t.Error("input map mutated")
	}
}

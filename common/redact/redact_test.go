package redact_test

import (
	"strings"
	"testing"

	"github.com/La100/vibeplanner-sub001/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	got := redact.String("token=abcd1234 rest", "abcd1234")
	if got != "token=[REDACTED] rest" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	if got := redact.String("abc token", "abc"); got != "abc token" {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestMap_RedactsNestedContactFields(t *testing.T) {
	in := map[string]any{
		"name": "Jan Kowalski",
		"contacts": []any{
			map[string]any{"email": "jan@example.com", "phoneNumber": "+48 600 000 000", "company": "Tiles Ltd"},
		},
		"notes": "",
	}
	out := redact.Map(in)

	if out["name"] != "Jan Kowalski" {
		t.Errorf("name should be kept, got %v", out["name"])
	}
	c := out["contacts"].([]any)[0].(map[string]any)
	if c["email"] != "[REDACTED]" || c["phoneNumber"] != "[REDACTED]" {
		t.Errorf("contact fields not redacted: %v", c)
	}
	if c["company"] != "Tiles Ltd" {
		t.Errorf("company should be kept, got %v", c["company"])
	}
	// input must not be mutated
	orig := in["contacts"].([]any)[0].(map[string]any)
	if orig["email"] != "jan@example.com" {
		t.Error("input map was mutated")
	}
}

func TestMap_KeepsEmptySensitiveValues(t *testing.T) {
	out := redact.Map(map[string]any{"email": ""})
	if out["email"] != "" {
		t.Fatalf("empty value should stay empty, got %v", out["email"])
	}
}

func TestJSON(t *testing.T) {
	got := redact.JSON(`{"type":"contact","data":{"name":"Ola","email":"ola@example.com"}}`)
	if strings.Contains(got, "ola@example.com") {
		t.Fatalf("email leaked: %s", got)
	}
	if !strings.Contains(got, `"Ola"`) {
		t.Fatalf("name missing: %s", got)
	}
}

func TestJSON_Unparseable(t *testing.T) {
	got := redact.JSON(`{"email":"x@y.z"`)
	if strings.Contains(got, "x@y.z") {
		t.Fatalf("malformed payload leaked: %s", got)
	}
	if !strings.HasPrefix(got, "[UNPARSEABLE") {
		t.Fatalf("unexpected marker %q", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	cases := map[string]bool{
		"email":        true,
		"EmailAddress": true,
		"apiKey":       true,
		"title":        false,
		"sectionName":  false,
	}
	for key, want := range cases {
		if got := redact.IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

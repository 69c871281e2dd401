// Package redact strips personal and secret values from tool-call payloads
// before they reach log lines, audit rows or Matrix notices.
//
// Agents routinely propose contacts (e-mail, phone, address) and the raw
// argument JSON is logged whenever a proposal cannot be normalized, so the
// helpers here operate on decoded maps and on raw JSON text alike.
// Redaction is best-effort and keyed on field names.
package redact

import (
	"encoding/json"
	"strconv"
	"strings"
)

const placeholder = "[REDACTED]"

// sensitiveWords are matched case-insensitively as substrings of a key.
var sensitiveWords = []string{
	"password", "passwd", "token", "secret", "apikey", "api_key", "credential",
	"email", "phone", "address", "iban",
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a deep copy of m in which every non-empty value stored under a
// sensitive key is replaced by [REDACTED]. Nested maps and slices are walked.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) && !isEmpty(v) {
			out[k] = placeholder
			continue
		}
		out[k] = value(v)
	}
	return out
}

// JSON redacts a raw JSON document. Input that does not decode is returned
// as a length marker so malformed payloads never leak verbatim.
func JSON(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "[UNPARSEABLE " + strconv.Itoa(len(raw)) + " bytes]"
	}
	b, err := json.Marshal(value(v))
	if err != nil {
		return placeholder
	}
	return string(b)
}

// IsSensitiveKey reports whether the key name suggests personal or secret data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Map(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Map(e)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}


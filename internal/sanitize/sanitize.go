// Package sanitize bounds untrusted JSON-decoded values before they reach
// business logic: strings are truncated and stripped of control characters,
// nesting depth is capped, and unknown types are dropped.
package sanitize

import (
	"strings"
	"unicode"
)

// MaxDepth caps recursion on adversarially nested payloads.
const MaxDepth = 10

// Value sanitizes an arbitrary JSON-decoded value. It never panics; on any
// internal error the whole value collapses to nil.
func Value(v any, maxLen int) (out any) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return walk(v, maxLen, 0)
}

// Map sanitizes a JSON object payload. It never panics; on any internal
// error it returns an empty map.
func Map(m map[string]any, maxLen int) (out map[string]any) {
	defer func() {
		if recover() != nil {
			out = map[string]any{}
		}
	}()
	if m == nil {
		return map[string]any{}
	}
	res, ok := walk(m, maxLen, 0).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return res
}

// String truncates s to maxLen runes and strips control characters other
// than tab, newline, and carriage return.
func String(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func walk(v any, maxLen, depth int) any {
	if depth >= MaxDepth {
		return nil
	}
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return String(t, maxLen)
	case bool, float64, float32, int, int32, int64:
		return t
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			out = append(out, walk(el, maxLen, depth+1))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[String(k, maxLen)] = walk(el, maxLen, depth+1)
		}
		return out
	default:
		// Unrecognized types are dropped rather than passed through.
		return nil
	}
}

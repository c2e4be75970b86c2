// Package validate checks sanitized payloads against a declarative schema:
// a required-field list plus per-field predicates. Validation short-circuits
// on the first missing field or failing predicate.
package validate

import (
	"sort"
	"strings"
)

// Predicate reports whether a field value is acceptable.
type Predicate func(v any) bool

// Schema describes one endpoint's expected payload.
type Schema struct {
	Required []string
	Fields   map[string]Predicate
}

// FieldError identifies the first offending field only.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Check validates payload. Required fields fail when absent, nil, or a
// blank string; fields absent from the predicate map carry no predicate.
// Required fields are checked in declaration order, predicates in sorted
// field-name order, so the reported failure is deterministic.
func (s Schema) Check(payload map[string]any) error {
	for _, f := range s.Required {
		v, ok := payload[f]
		if !ok || isEmpty(v) {
			return &FieldError{Field: f, Reason: "is required"}
		}
	}
	names := make([]string, 0, len(s.Fields))
	for f := range s.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		v, ok := payload[f]
		if !ok {
			continue
		}
		if !s.Fields[f](v) {
			return &FieldError{Field: f, Reason: "is invalid"}
		}
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ---- Common predicates ----

// IsString accepts non-empty strings.
func IsString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// IsNumber accepts JSON numbers.
func IsNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

// Positive accepts numbers > 0.
func Positive(v any) bool {
	switch n := v.(type) {
	case float64:
		return n > 0
	case float32:
		return n > 0
	case int:
		return n > 0
	case int32:
		return n > 0
	case int64:
		return n > 0
	}
	return false
}

// OneOf accepts strings from a fixed set.
func OneOf(allowed ...string) Predicate {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = set[s]
		return ok
	}
}

// IsStringSlice accepts arrays whose elements are all strings.
func IsStringSlice(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		if _, ok := el.(string); !ok {
			return false
		}
	}
	return true
}

// IsBool accepts booleans.
func IsBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

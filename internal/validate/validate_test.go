package validate

import (
	"errors"
	"testing"
)

func TestCheck_MissingRequiredField(t *testing.T) {
	s := Schema{Required: []string{"a", "b"}}
	err := s.Check(map[string]any{"a": float64(1)})
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fe.Field != "b" {
		t.Errorf("expected field b, got %q", fe.Field)
	}
}

func TestCheck_FailingPredicate(t *testing.T) {
	s := Schema{
		Required: []string{"a", "b"},
		Fields:   map[string]Predicate{"b": Positive},
	}
	err := s.Check(map[string]any{"a": float64(1), "b": float64(-1)})
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fe.Field != "b" {
		t.Errorf("expected field b, got %q", fe.Field)
	}
}

func TestCheck_RequiredOrderDeterminesError(t *testing.T) {
	s := Schema{Required: []string{"first", "second"}}
	err := s.Check(map[string]any{})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "first" {
		t.Errorf("expected first declared field reported, got %v", err)
	}
}

func TestCheck_EmptyValuesFailRequired(t *testing.T) {
	s := Schema{Required: []string{"name"}}
	for _, v := range []any{nil, "", "   "} {
		if err := s.Check(map[string]any{"name": v}); err == nil {
			t.Errorf("value %#v should fail the required check", v)
		}
	}
}

func TestCheck_OptionalFieldPredicate(t *testing.T) {
	s := Schema{Fields: map[string]Predicate{"tags": IsStringSlice}}
	// Absent optional field passes.
	if err := s.Check(map[string]any{}); err != nil {
		t.Errorf("absent optional field should pass: %v", err)
	}
	// Present but wrong shape fails.
	if err := s.Check(map[string]any{"tags": []any{"a", float64(2)}}); err == nil {
		t.Error("mixed-type tags should fail")
	}
	if err := s.Check(map[string]any{"tags": []any{"a", "b"}}); err != nil {
		t.Errorf("string tags should pass: %v", err)
	}
}

func TestCheck_PresentWhenRequiredWithoutPredicate(t *testing.T) {
	s := Schema{Required: []string{"anything"}}
	if err := s.Check(map[string]any{"anything": map[string]any{"x": 1}}); err != nil {
		t.Errorf("field without predicate should only be required-checked: %v", err)
	}
}

func TestPredicates(t *testing.T) {
	if !OneOf("wood", "gas", "electric")("gas") {
		t.Error("OneOf should accept member")
	}
	if OneOf("wood", "gas")("coal") {
		t.Error("OneOf should reject non-member")
	}
	if !IsNumber(float64(3)) || IsNumber("3") {
		t.Error("IsNumber misbehaves")
	}
	if !IsBool(true) || IsBool("true") {
		t.Error("IsBool misbehaves")
	}
	if !IsString("x") || IsString("  ") {
		t.Error("IsString misbehaves")
	}
}

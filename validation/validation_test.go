package validation

import (
	"testing"

	"github.com/kbukum/restkit/errors"
)

type book struct {
	Title  string `json:"title" validate:"required"`
	Pages  int    `json:"pages" validate:"gte=0"`
	Author string `json:"author_email" validate:"omitempty,email"`
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(&book{Title: "Go", Pages: 10}); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	err := Validate(&book{Pages: -1, Author: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != errors.ErrCodeInvalidPayload {
		t.Errorf("expected INVALID_PAYLOAD, got %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", appErr.Details["fields"])
	}
	if fields[0].Field != "title" {
		t.Errorf("expected json field name 'title', got %q", fields[0].Field)
	}
	if fields[2].Field != "author_email" {
		t.Errorf("expected json field name 'author_email', got %q", fields[2].Field)
	}
}

func TestValidate_NonStruct(t *testing.T) {
	if err := Validate(map[string]any{"a": 1}); err != nil {
		t.Errorf("maps should pass, got %v", err)
	}
	if err := Validate(nil); err != nil {
		t.Errorf("nil should pass, got %v", err)
	}
}

func TestValidator_Chaining(t *testing.T) {
	err := New().
		Required("name", " ").
		Min("wifi", 0, 1).
		Max("wan", 10, 4).
		OneOf("policy", "sometimes", []string{"none", "retry"}).
		Custom(false, "dir", "must be absolute").
		UUID("id", "not-a-uuid").
		Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	appErr, _ := errors.AsAppError(err)
	fields := appErr.Details["fields"].([]FieldError)
	if len(fields) != 6 {
		t.Errorf("expected 6 errors, got %d: %v", len(fields), fields)
	}
}

func TestValidator_Clean(t *testing.T) {
	v := New().Required("name", "x").Min("n", 2, 1).OneOf("p", "", []string{"a"})
	if v.HasErrors() {
		t.Errorf("unexpected errors %v", v.Errors())
	}
	if err := v.Validate(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestValidator_NilUUID(t *testing.T) {
	v := New().UUID("id", "00000000-0000-0000-0000-000000000000")
	if !v.HasErrors() || v.Errors()[0].Message != "must not be empty" {
		t.Errorf("expected nil uuid error, got %v", v.Errors())
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("MaxAttempts"); got != "max_attempts" {
		t.Errorf("got %q", got)
	}
}

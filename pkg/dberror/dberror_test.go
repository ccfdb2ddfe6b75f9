package dberror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CategoryConflict, "REV_CONFLICT", "stale revision").
		WithDetail("doc abc123")
	err.Operation = "Update"
	err.Component = "Database"

	msg := err.Error()
	for _, want := range []string{"[REV_CONFLICT]", "stale revision", "doc abc123", "Update", "Database"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestWrapPreservesEngineError(t *testing.T) {
	inner := New(CategoryNotFound, "ELEM_NOT_FOUND", "no such key")
	wrapped := Wrap(fmt.Errorf("lookup: %w", inner), "LOOKUP_FAILED", "Get", "HashIndex")

	if wrapped.Code != "ELEM_NOT_FOUND" {
		t.Errorf("wrap replaced engine error, code = %q", wrapped.Code)
	}
	if wrapped.Operation != "Get" || wrapped.Component != "HashIndex" {
		t.Error("wrap did not enrich missing context")
	}
	if !IsNotFound(wrapped) {
		t.Error("category lost through wrapping")
	}
}

func TestWrapForeignError(t *testing.T) {
	cause := errors.New("disk on fire")
	wrapped := Wrap(cause, "IO_FAILED", "WritePage", "Storage")

	if wrapped.Category != CategorySystem {
		t.Errorf("foreign errors default to system category, got %v", wrapped.Category)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause not reachable via errors.Is")
	}
}

func TestCategoryPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
	}{
		{New(CategoryNotFound, "X", "m"), IsNotFound},
		{New(CategoryConflict, "X", "m"), IsConflict},
		{New(CategoryCorruption, "X", "m"), IsCorruption},
		{New(CategoryReindex, "X", "m"), IsReindexRequired},
		{New(CategoryConfig, "X", "m"), IsConfig},
	}

	for i, c := range cases {
		if !c.pred(c.err) {
			t.Errorf("case %d: predicate rejected its own category", i)
		}
		if c.pred(errors.New("plain")) {
			t.Errorf("case %d: predicate accepted a plain error", i)
		}
	}
}

func TestCategoryOfPlainError(t *testing.T) {
	if CategoryOf(errors.New("plain")) != CategorySystem {
		t.Error("plain errors should map to the system category")
	}
}

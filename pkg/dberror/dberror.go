package dberror

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Category classifies errors by their nature and appropriate handling
// strategy: whether the caller should retry with fresh state, rebuild an
// index, or give up.
type Category int

const (
	// CategoryNotFound marks a key or document that is simply absent.
	// Normal and expected; callers branch on it rather than failing.
	CategoryNotFound Category = iota

	// CategoryConflict marks a duplicate unique key or a stale revision.
	// The caller must re-read and retry.
	CategoryConflict

	// CategoryCorruption marks on-disk data that fails to deserialize or
	// violates a structural invariant. Never retried; scans skip the
	// offending record and continue.
	CategoryCorruption

	// CategoryReindex marks an index whose schema or capacity no longer
	// matches its definition. The caller must trigger a reindex before
	// using that index again.
	CategoryReindex

	// CategoryConfig marks an unusable configuration: header too large,
	// unsupported key width. Fatal at creation time, not recoverable at
	// runtime.
	CategoryConfig

	// CategorySystem marks file system and I/O failures outside the
	// engine's control.
	CategorySystem
)

// Error is a structured engine error carrying a category, a stable code,
// and the operation/component where it originated.
type Error struct {
	// Code is a stable identifier for this error type,
	// e.g. "ELEM_NOT_FOUND", "REV_CONFLICT", "STORAGE_CORRUPTED".
	Code string

	// Category classifies the error for handling strategy.
	Category Category

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail adds context about the specific instance, such as the key or
	// index name involved.
	Detail string

	// Operation names the engine operation in flight, e.g. "Insert", "Get".
	Operation string

	// Component names where the error originated, e.g. "Storage",
	// "HashIndex", "Database".
	Component string

	// Cause is the underlying error, preserved for errors.Is/As traversal.
	Cause error

	// Stack is the call stack captured at creation, kept for debugging.
	Stack []uintptr
}

// New creates a new Error with the given category, code and message.
func New(category Category, code, message string) *Error {
	return &Error{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(category Category, code, format string, args ...any) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// WithDetail returns the error with its detail field set.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap attaches engine context to an arbitrary error. If err is already an
// *Error, operation and component are filled in only where missing.
func Wrap(err error, code, operation, component string) *Error {
	if err == nil {
		return nil
	}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		if engineErr.Operation == "" {
			engineErr.Operation = operation
		}
		if engineErr.Component == "" {
			engineErr.Component = component
		}
		return engineErr
	}

	return &Error{
		Code:      code,
		Category:  CategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// Error implements the error interface. The format is:
// [CODE] Message: Detail (operation: Op, component: Comp) caused by: err
func (e *Error) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}

	if e.Operation != "" {
		fmt.Fprintf(&b, " (operation: %s", e.Operation)
		if e.Component != "" {
			fmt.Fprintf(&b, ", component: %s", e.Component)
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, " caused by: %v", e.Cause)
	}

	return b.String()
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CategoryOf extracts the category of an error chain, or CategorySystem if
// no *Error is present.
func CategoryOf(err error) Category {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Category
	}
	return CategorySystem
}

// IsNotFound reports whether err represents an absent key or document.
func IsNotFound(err error) bool { return hasCategory(err, CategoryNotFound) }

// IsConflict reports whether err represents a unique-key or revision
// conflict.
func IsConflict(err error) bool { return hasCategory(err, CategoryConflict) }

// IsCorruption reports whether err represents corrupted on-disk data.
func IsCorruption(err error) bool { return hasCategory(err, CategoryCorruption) }

// IsReindexRequired reports whether err means the index must be rebuilt.
func IsReindexRequired(err error) bool { return hasCategory(err, CategoryReindex) }

// IsConfig reports whether err represents a fatal configuration problem.
func IsConfig(err error) bool { return hasCategory(err, CategoryConfig) }

func hasCategory(err error, c Category) bool {
	var engineErr *Error
	return errors.As(err, &engineErr) && engineErr.Category == c
}

// captureStack captures the current call stack, skipping the frames of this
// package so the trace starts at the error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// FormatStack returns a human-readable stack trace for debugging.
func (e *Error) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "  %s\n    %s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}

	return b.String()
}

package forma

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes (exported consts for IDE completion and type safety by convention)
const (
	CodeUninitializedValue     = "uninitialized_value"
	CodeUninitializedField     = "uninitialized_field"
	CodeUninitializedEnumField = "uninitialized_enum_field"
	CodeWasNotA                = "was_not_a"
	CodeWrongShape             = "wrong_shape"
	CodeOperationFailed        = "operation_failed"
	CodeUnsized                = "unsized"
	CodeNoDefaultImpl          = "default_attr_but_no_default_impl"
	// Navigation misuse (always returned, never a panic)
	CodeNoActiveFrame   = "no_active_frame"
	CodeKeyWithoutValue = "key_without_value"
	CodeChildInProgress = "child_in_progress"
	CodeUnknownField    = "unknown_field"
	CodeUnknownVariant  = "unknown_variant"
	CodeOutOfBounds     = "out_of_bounds"
	CodeBuilderConsumed = "builder_consumed"
	CodeNotInDeferred   = "not_in_deferred"
	CodeParseError      = "parse_error"
	CodeValidation      = "validation"
)

// Error is a single code-tagged builder/reflection error. Fields beyond Code
// are populated on a best-effort basis so callers can produce path-qualified
// messages without string parsing.
type Error struct {
	Code    string
	Path    string // JSON Pointer into the value under construction (for example: /items/2/price)
	Shape   *Shape // shape the error occurred on, when known
	Field   string // field name for field-scoped codes
	Variant string // active variant for uninitialized_enum_field
	Op      string // operation name for operation_failed
	// Expected/Actual describe mismatches for was_not_a / wrong_shape.
	Expected string
	Actual   string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	b := &strings.Builder{}
	b.WriteString(e.Code)
	if e.Path != "" {
		fmt.Fprintf(b, " at %s", e.Path)
	}
	if e.Shape != nil {
		fmt.Fprintf(b, " (shape %s)", e.Shape)
	}
	switch {
	case e.Field != "" && e.Variant != "":
		fmt.Fprintf(b, ": field %q of variant %q", e.Field, e.Variant)
	case e.Field != "":
		fmt.Fprintf(b, ": field %q", e.Field)
	}
	if e.Expected != "" {
		fmt.Fprintf(b, ": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Op != "" {
		fmt.Fprintf(b, ": operation %s", e.Op)
	}
	if e.Message != "" {
		fmt.Fprintf(b, ": %s", e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts a *Error from err using errors.As internally.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsCode reports whether err is a forma error carrying the given code.
func IsCode(err error, code string) bool {
	fe, ok := AsError(err)
	return ok && fe.Code == code
}

func errWasNotA(expected string, actual *Shape) *Error {
	return &Error{Code: CodeWasNotA, Shape: actual, Expected: expected, Actual: actual.String()}
}

func errOperationFailed(sh *Shape, op string) *Error {
	return &Error{Code: CodeOperationFailed, Shape: sh, Op: op}
}

package functions

import "fmt"

// FieldError reports a single invalid field on a Function definition,
// surfaced at config-load time (§7: "invalid subtrees are rejected").
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("function field %q: %s", e.Field, e.Reason)
}

func errInvalidField(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

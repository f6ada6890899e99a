package filter

import (
	"errors"
	"fmt"
)

// ErrInvalidFilter is returned by Parse for malformed filter documents.
var ErrInvalidFilter = errors.New("filter: invalid filter")

// UnresolvedOperandError is returned when a predicate references a property
// missing from the schema, lacks an operand, or has an operand of the wrong
// kind.
type UnresolvedOperandError struct {
	Kind    Kind
	Operand string
	Reason  string
}

func (e *UnresolvedOperandError) Error() string {
	if e.Operand == "" {
		return fmt.Sprintf("filter: unresolved operand in %s predicate: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("filter: unresolved operand %q in %s predicate: %s", e.Operand, e.Kind, e.Reason)
}

// UnsupportedPredicateError is returned for predicate kinds that have no
// backend translation.
type UnsupportedPredicateError struct {
	Kind Kind
}

func (e *UnsupportedPredicateError) Error() string {
	return fmt.Sprintf("filter: unsupported predicate %s", e.Kind)
}

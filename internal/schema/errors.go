package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownMutation is returned when a mutation name is not declared.
var ErrUnknownMutation = errors.New("unknown mutation")

// IntegrityError reports a schema that references an undeclared type, or a
// lookup of a type the catalog does not contain.
type IntegrityError struct {
	Source  string
	Type    string
	Field   string
	Missing string
	Err     error
}

func (e *IntegrityError) Error() string {
	switch {
	case e.Err != nil && e.Source != "":
		return fmt.Sprintf("schema integrity: %s: %v", e.Source, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("schema integrity: %v", e.Err)
	case e.Type != "":
		return fmt.Sprintf("schema integrity: %s.%s references undeclared type %q", e.Type, e.Field, e.Missing)
	default:
		return fmt.Sprintf("schema integrity: type %q is not declared", e.Missing)
	}
}

func (e *IntegrityError) Unwrap() error { return e.Err }

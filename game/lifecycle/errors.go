package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when an operation is attempted on an
	// instance not in a legal source state. No state is changed.
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")

	// ErrRecordMalformed is returned when a progress record references a
	// quest the catalog does not know, or lacks required fields.
	ErrRecordMalformed = errors.New("lifecycle: record missing or malformed")
)

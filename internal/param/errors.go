package param

import "errors"

var (
	// ErrNotFound is returned when a key is absent from every scope consulted,
	// including the target of a $name$ indirection.
	ErrNotFound = errors.New("param: not found")

	// ErrMalformedParam is returned when a tagged value carries zero tags,
	// more than one tag, an unrecognized tag, or a payload of the wrong shape.
	ErrMalformedParam = errors.New("param: malformed parameter")

	// ErrInvalidValue is returned when a value has a supported shape but
	// cannot be represented, such as an empty list.
	ErrInvalidValue = errors.New("param: invalid value")

	// ErrUnsupportedType is returned when a value or list element has no
	// tagged representation.
	ErrUnsupportedType = errors.New("param: unsupported type")
)

package variation

import "errors"

var (
	// ErrNoSuchField is returned when a path holds no array.
	ErrNoSuchField = errors.New("no such field")

	// ErrConflictingFieldSelection is returned when both kept and ignored
	// fields are configured.
	ErrConflictingFieldSelection = errors.New("kept fields and ignored fields are mutually exclusive")

	// ErrUndeclaredField is returned when a record uses an INFO or FORMAT key
	// that the header never declared.
	ErrUndeclaredField = errors.New("field not declared in header")

	// ErrMalformedHeader is returned for header declarations that cannot be
	// understood.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrLDPrecondition is returned when linkage disequilibrium is requested
	// on data where the estimator is not reliable.
	ErrLDPrecondition = errors.New("linkage disequilibrium precondition violated")
)

package spatial

// Error types attached with WithType to the errors returned by the indexes.
//
// An index that finds its own linked lists out of sync with the position of
// an element panics with an ErrTypeInvariantViolation error: the caller
// changed the element state behind the index and nothing can be recovered.
const (
	ErrTypeInvalidArgument    = "invalid_argument"
	ErrTypeIndexOutOfRange    = "index_out_of_range"
	ErrTypeNotFound           = "not_found"
	ErrTypeInvariantViolation = "invariant_violation"
)

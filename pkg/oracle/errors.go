package oracle

import "errors"

// The stable error taxonomy. Callers branch with errors.Is; the HTTP layer
// maps these onto status codes.
var (
	// ErrInvalidArgument means caller-supplied data failed validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOutcome means the outcome is not in the announced set.
	ErrInvalidOutcome = errors.New("invalid outcome")

	// ErrNotFound means no event exists with the given id.
	ErrNotFound = errors.New("event not found")

	// ErrEventAlreadySigned means the event is in its terminal state and
	// refuses further signing.
	ErrEventAlreadySigned = errors.New("event already signed")

	// ErrStorageFailure means the store failed to read or write.
	ErrStorageFailure = errors.New("storage failure")

	// ErrInternal means an invariant was violated on a path that should be
	// unreachable. It indicates a bug.
	ErrInternal = errors.New("internal error")
)

package errors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid")
	ErrConflict           = errors.New("conflict")
	ErrTooMany            = errors.New("too many requests")
	ErrInternal           = errors.New("internal")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrTransientEmbedding = errors.New("transient embedding failure")
	ErrPermanentEmbedding = errors.New("permanent embedding failure")
	ErrRetryExhausted     = errors.New("retry exhausted")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports whether an embedding failure should consume a slot
// of the retry budget and be rescheduled.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientEmbedding)
}

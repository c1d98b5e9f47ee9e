package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFormat
	ErrExtractionFailed
	ErrEmbeddingUnavailable
	ErrRetryExhausted
)

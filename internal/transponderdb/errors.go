package transponderdb

import "errors"

var (
	// ErrSourceUnavailable marks a database file that could not be opened.
	// Loading skips such sources.
	ErrSourceUnavailable = errors.New("transponder database source unavailable")

	// ErrIndexMismatch is returned when an entry's satellite number does not
	// match the identity at the same index.
	ErrIndexMismatch = errors.New("transponder entry does not match identity index")

	// ErrIndexOutOfRange is returned for indices outside the identity list.
	ErrIndexOutOfRange = errors.New("satellite index out of range")

	// ErrInvalidValue is returned by Set for attitudes or frequencies that
	// are NaN or infinite.
	ErrInvalidValue = errors.New("transponder entry holds a non-finite value")

	// ErrWriteFailed wraps any failure to persist the database.
	ErrWriteFailed = errors.New("transponder database write failed")
)

var errNotFinite = errors.New("value is not finite")

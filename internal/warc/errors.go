package warc

import "errors"

// Extraction errors.
// Every failure of a single capture extraction wraps one of these, so
// callers can classify per-row failures with errors.Is while the
// surrounding run keeps going.
var (
	// ErrInvalidRange is returned when the requested byte range cannot
	// address a capture (negative offset or non-positive length).
	ErrInvalidRange = errors.New("invalid capture byte range")

	// ErrMalformedRecord is returned when the bytes at the requested
	// range do not parse as a capture record.
	ErrMalformedRecord = errors.New("malformed capture record")

	// ErrNotResponse is returned when the record at the requested range
	// is not an HTTP response record (for example a request or metadata
	// record).
	ErrNotResponse = errors.New("record is not an HTTP response")
)

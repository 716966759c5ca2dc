package wacz

import "errors"

// Container access errors.
//
// Design decision: We use package-level sentinel errors rather than
// error types because callers only need to classify failures, not
// inspect them: a bad container layout aborts the run, a missing
// top-level member aborts the operation that needed it, and a missing
// capture for one URL is recoverable row by row.
var (
	// ErrInvalidContainer is returned when a container artifact cannot
	// be opened as a ZIP or lacks the archive/, indexes/, pages/
	// layout. Nothing can be read from such a container.
	ErrInvalidContainer = errors.New("invalid container: archive layout not recognized")

	// ErrMemberNotFound is returned when a named container member does
	// not exist. Fatal when the member is a page manifest or the
	// content index; recoverable when it is a single capture segment.
	ErrMemberNotFound = errors.New("container member not found")

	// ErrNoIndexEntry is returned by ExtractByURL when the content
	// index has no extractable entry for the URL.
	ErrNoIndexEntry = errors.New("no extractable index entry for url")
)

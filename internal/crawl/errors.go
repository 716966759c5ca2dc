package crawl

import "errors"

// Crawler invocation errors.
//
// Design decision: We define specific error types rather than wrapping
// all errors generically. The CLI distinguishes "the crawler never ran"
// (bad request) from "the crawler ran but produced nothing" (inspect
// the crawler's own logs).
var (
	// ErrNoCollection is returned when a crawl request carries no
	// collection name. The collection names the output directory and
	// the artifact file, so the runner cannot locate results without it.
	ErrNoCollection = errors.New("crawl collection name is required")

	// ErrNoOutputDir is returned when a crawl request carries no output
	// directory.
	ErrNoOutputDir = errors.New("crawl output directory is required")

	// ErrArtifactNotFound is returned when the crawler exits
	// successfully but the expected container artifact does not exist.
	// Some crawlers exit zero after capturing nothing.
	ErrArtifactNotFound = errors.New("crawler produced no container artifact")
)

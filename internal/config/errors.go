package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoContainer is returned when no archive container is specified.
	// This error occurs when neither --list nor a positional argument
	// provides a container path.
	ErrNoContainer = errors.New("no container specified: provide an archive path or use --list")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	// A batch size of zero would mean no containers are processed.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidWorkerCount is returned when the extraction worker count
	// is not positive. At least one worker is needed to extract captures.
	ErrInvalidWorkerCount = errors.New("invalid worker count: must be positive")

	// ErrInvalidKeywordLimit is returned when the keyword limit is
	// negative. Use 0 to fall back to the default limit.
	ErrInvalidKeywordLimit = errors.New("invalid keyword limit: must be non-negative")

	// ErrInvalidCrawlTimeout is returned when the crawl timeout is not
	// positive. A zero timeout would abort every crawler run immediately.
	ErrInvalidCrawlTimeout = errors.New("invalid crawl timeout: must be positive")
)

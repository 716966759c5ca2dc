package report

import "errors"

// ErrUnsupportedFormat is returned by WriterForPath when the output path
// carries an extension no writer handles.
//
// Design decision: We return a sentinel error rather than silently
// defaulting to one format because a typo in an output path would
// otherwise produce a file in an unexpected format, and the mistake
// surfaces much later when a downstream consumer fails to parse it.
var ErrUnsupportedFormat = errors.New("unsupported output format")

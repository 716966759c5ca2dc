package database

import "errors"

// ErrRunNotFound is returned when a run ID does not exist in the store.
//
// Design decision: Lookups that feed user-facing commands return this
// sentinel instead of nil results because a mistyped run ID should fail
// loudly, not render an empty comparison.
var ErrRunNotFound = errors.New("run not found")

package pipeline

import "errors"

// ErrStepNotReady is returned when a step runs before the steps that
// produce its inputs.
//
// Design decision: Steps fail loudly on missing inputs instead of
// silently skipping because a misordered pipeline is a wiring bug, and
// a quiet skip would surface as an inexplicably empty record set.
var ErrStepNotReady = errors.New("step input not ready")

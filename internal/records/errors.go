package records

import "errors"

// ErrInvalidStage is returned when an assembly operation is called out
// of order. The assembler is a linear machine: inventory loading, index
// attachment, content extraction, deletion reconciliation, and
// finalization each run exactly once, in that order.
//
// Design decision: Out-of-order calls are errors rather than silent
// no-ops because:
//  1. A skipped stage produces a structurally valid but wrong record set
//  2. The caller is always a pipeline that controls ordering anyway
//  3. The failure names both the expected and the actual stage
var ErrInvalidStage = errors.New("invalid assembly stage")

// Package pipeline provides a framework for executing harvest steps in
// sequence.
//
// The pipeline pattern is used to process container artifacts through
// multiple stages: container validation, manifest and index loading,
// record assembly, deletion reconciliation, history recording, and
// output writing. Each stage is implemented as a Step that receives the
// per-run Harvest and can extend it.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running harvests
//
// The pipeline supports both individual harvests and batch processing
// with concurrency control using errgroup.
package pipeline

// Package model defines the core data structures used throughout harvester.
//
// This package contains the following main types:
//   - Page: One row of a container's page manifest
//   - Record: One assembled record (manifest row joined with its capture)
//   - RecordSet: The finalized, immutable record collection
//   - Harvest: The per-run state threaded through pipeline steps
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (wacz, records, report, database) need to
// use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for record output and
// database storage.
package model

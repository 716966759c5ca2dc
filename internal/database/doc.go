// Package database provides SQLite-based storage for harvest run history.
//
// This package implements the HarvestDB, which stores:
//   - One row per completed harvest run with record counts
//   - The assembled record rows of each run for inventory reuse
//   - Enough per-URL detail to compare two runs over time
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
//
// The stored URL inventory of the latest run doubles as the prior
// inventory for deletion reconciliation, so a plain URL list file is
// only needed when no history database is available.
package database

// Package records assembles crawl records from an opened archive
// container.
//
// The Assembler is the heart of the pipeline. It merges the container's
// page manifests into one URL inventory, resolves each URL's canonical
// content index entry, extracts and parses capture payloads, diffs a
// prior inventory to flag deleted pages, and finalizes everything into
// an immutable model.RecordSet with a uniform column superset.
//
// The assembler degrades rather than fails: a URL without a usable
// index entry, an unreadable capture, or an unparseable payload costs
// that one record its optional fields and produces a log line. The run
// either returns a complete record set or a single fatal error, never
// a partial result.
package records

package model

import (
	"slices"
	"sort"
)

// coreColumns is the fixed leading column order for record sets. Columns
// outside this list are appended alphabetically.
var coreColumns = []string{
	"url",
	"title",
	"timestamp",
	"status",
	"mime",
	"http_status",
	"segment",
	"offset",
	"length",
	"digest",
}

// RecordSet is a finalized, immutable collection of records sharing one
// uniform column superset.
//
// Design decision: The set is immutable after construction because:
// 1. Writers and the run-history store iterate it concurrently
// 2. Idempotent assembly requires the finalized output to never drift
// 3. Accessors return copies, so callers cannot reach the backing slices
type RecordSet struct {
	records []Record
	columns []string
}

// NewRecordSet builds a finalized set from the given records, in the
// given order. The records are deep-copied; the caller keeps ownership
// of its slice. The column superset is the union of populated columns
// across all records, core columns first, the rest alphabetical.
func NewRecordSet(records []Record) *RecordSet {
	rows := make([]Record, len(records))
	for i := range records {
		rows[i] = records[i].clone()
	}

	seen := make(map[string]bool)
	for i := range rows {
		for _, c := range rows[i].columns() {
			seen[c] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for _, c := range coreColumns {
		if seen[c] {
			columns = append(columns, c)
			delete(seen, c)
		}
	}
	rest := make([]string, 0, len(seen))
	for c := range seen {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	return &RecordSet{records: rows, columns: columns}
}

// Len returns the number of records in the set.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in iteration order: present
// records first, deleted records after.
func (s *RecordSet) Records() []Record {
	rows := make([]Record, len(s.records))
	for i := range s.records {
		rows[i] = s.records[i].clone()
	}
	return rows
}

// Columns returns a copy of the uniform column superset.
func (s *RecordSet) Columns() []string {
	return slices.Clone(s.columns)
}

// Active returns the number of records with StatusActive.
func (s *RecordSet) Active() int {
	n := 0
	for i := range s.records {
		if s.records[i].Status == StatusActive {
			n++
		}
	}
	return n
}

// Deleted returns the number of records with StatusDeleted.
func (s *RecordSet) Deleted() int {
	n := 0
	for i := range s.records {
		if s.records[i].Status == StatusDeleted {
			n++
		}
	}
	return n
}

// URLs returns the record URLs in iteration order.
func (s *RecordSet) URLs() []string {
	urls := make([]string, len(s.records))
	for i := range s.records {
		urls[i] = s.records[i].URL
	}
	return urls
}

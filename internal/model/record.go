package model

import (
	"time"
)

// Record status values. A record is either present in the current
// container or known only from a prior inventory.
const (
	// StatusActive marks a record captured by the current container.
	StatusActive = "active"

	// StatusDeleted marks a record present in a prior inventory but
	// absent from the current container.
	StatusDeleted = "deleted"
)

// Record is one assembled row of a record set: a page manifest entry
// joined with its canonical content-index entry and, optionally, content
// extracted from the capture segment.
//
// Design decision: Core fields are typed struct fields while rule-driven
// metadata lands in Extras because:
// 1. The core columns are fixed by the record model and benefit from types
// 2. Tag-rule extraction is configured at runtime, so its field names are open
// 3. Writers reach both uniformly through Value()
type Record struct {
	// URL is the record's page URL. Always set.
	URL string `json:"url"`

	// Title is the page title from the manifest row.
	Title string `json:"title,omitempty"`

	// Timestamp is the capture time of the canonical index entry,
	// falling back to the manifest time when the index carries none.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Status is StatusActive or StatusDeleted. Deleted records carry
	// only URL and Status.
	Status string `json:"status"`

	// Mime is the captured MIME type from the canonical index entry.
	Mime string `json:"mime,omitempty"`

	// HTTPStatus is the HTTP status code from the canonical index entry.
	HTTPStatus int `json:"http_status,omitempty"`

	// Segment is the capture segment (WARC file name) holding the
	// canonical capture.
	Segment string `json:"segment,omitempty"`

	// Offset is the byte offset of the capture inside the segment.
	// Nil when the record has no canonical index entry. A pointer is
	// used because offset zero is a valid position.
	Offset *int64 `json:"offset,omitempty"`

	// Length is the byte length of the capture inside the segment.
	// Nil when the record has no canonical index entry.
	Length *int64 `json:"length,omitempty"`

	// Digest is the payload digest recorded by the index.
	Digest string `json:"digest,omitempty"`

	// Fulltext is the whitespace-normalized page text, when content
	// extraction is enabled.
	Fulltext string `json:"fulltext,omitempty"`

	// Keywords is the comma-joined keyword list derived from Fulltext,
	// when content extraction is enabled.
	Keywords string `json:"keywords,omitempty"`

	// HTMLB64 is the base64-encoded raw HTML payload, when payload
	// retention is enabled.
	HTMLB64 string `json:"html_b64,omitempty"`

	// Extras holds rule-extracted metadata fields keyed by the
	// configured field name (for example og_title).
	Extras map[string]string `json:"extras,omitempty"`
}

// NewDeletedRecord returns a record for a URL that disappeared from the
// crawl: only URL and Status are populated.
func NewDeletedRecord(url string) Record {
	return Record{URL: url, Status: StatusDeleted}
}

// Value returns the record's value for a named column and whether the
// record populates that column. Offsets and lengths are returned as
// int64, HTTP status as int, and everything else as string.
func (r *Record) Value(column string) (any, bool) {
	switch column {
	case "url":
		return r.URL, true
	case "title":
		return r.Title, r.Title != ""
	case "timestamp":
		if r.Timestamp.IsZero() {
			return "", false
		}
		return r.Timestamp.UTC().Format(time.RFC3339), true
	case "status":
		return r.Status, r.Status != ""
	case "mime":
		return r.Mime, r.Mime != ""
	case "http_status":
		return r.HTTPStatus, r.HTTPStatus != 0
	case "segment":
		return r.Segment, r.Segment != ""
	case "offset":
		if r.Offset == nil {
			return int64(0), false
		}
		return *r.Offset, true
	case "length":
		if r.Length == nil {
			return int64(0), false
		}
		return *r.Length, true
	case "digest":
		return r.Digest, r.Digest != ""
	case "fulltext":
		return r.Fulltext, r.Fulltext != ""
	case "keywords":
		return r.Keywords, r.Keywords != ""
	case "html_b64":
		return r.HTMLB64, r.HTMLB64 != ""
	default:
		v, ok := r.Extras[column]
		return v, ok
	}
}

// contentColumns are the content-derived columns outside the fixed core
// order. They sort alphabetically together with rule-extracted extras.
var contentColumns = []string{"fulltext", "html_b64", "keywords"}

// columns lists every column this record populates.
func (r *Record) columns() []string {
	cols := make([]string, 0, len(coreColumns)+len(contentColumns)+len(r.Extras))
	for _, c := range coreColumns {
		if _, ok := r.Value(c); ok {
			cols = append(cols, c)
		}
	}
	for _, c := range contentColumns {
		if _, ok := r.Value(c); ok {
			cols = append(cols, c)
		}
	}
	for c := range r.Extras {
		cols = append(cols, c)
	}
	return cols
}

// clone returns a deep copy of the record. The Extras map is copied so
// mutations on the copy never reach the original.
func (r *Record) clone() Record {
	c := *r
	if r.Offset != nil {
		v := *r.Offset
		c.Offset = &v
	}
	if r.Length != nil {
		v := *r.Length
		c.Length = &v
	}
	if len(r.Extras) > 0 {
		c.Extras = make(map[string]string, len(r.Extras))
		for k, v := range r.Extras {
			c.Extras[k] = v
		}
	}
	return c
}

package cdx

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxLineBytes is the scanner buffer limit for one index line. Index
// lines carry a JSON payload and stay far below this in practice.
const maxLineBytes = 4 << 20 // 4 MB

// timestampFormat is the 14-digit capture time used by index lines.
const timestampFormat = "20060102150405"

// Entry is one content-index line: the location of a single capture
// inside a capture segment, plus the metadata recorded at capture time.
type Entry struct {
	// Key is the searchable URL form the line is sorted by.
	Key string `json:"key"`

	// Timestamp is the 14-digit capture time from the line.
	Timestamp string `json:"timestamp"`

	// URL is the captured URL from the line's payload. Entries are
	// looked up by this field, not by Key.
	URL string `json:"url"`

	// Filename is the capture segment holding this capture.
	Filename string `json:"filename"`

	// Offset is the byte offset of the capture inside the segment.
	Offset int64 `json:"offset"`

	// Length is the byte length of the capture inside the segment.
	Length int64 `json:"length"`

	// Mime is the captured MIME type.
	Mime string `json:"mime,omitempty"`

	// Status is the HTTP status code at capture time. Zero when the
	// payload carried none.
	Status int `json:"status,omitempty"`

	// Digest is the payload digest recorded by the indexer.
	Digest string `json:"digest,omitempty"`

	// Order is the line position within the index. Later lines have
	// higher Order; ties between otherwise equal entries resolve to
	// the highest Order.
	Order int `json:"order"`
}

// Time parses the entry's 14-digit timestamp. Returns the zero time
// when the timestamp is missing or malformed.
func (e *Entry) Time() time.Time {
	t, err := time.Parse(timestampFormat, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsHTML reports whether the entry captured an HTML page.
func (e *Entry) IsHTML() bool {
	return e.Mime == "text/html"
}

// usable reports whether the entry locates an extractable capture.
// Entries without a segment name or with no length cannot be extracted.
func (e *Entry) usable() bool {
	return e.Filename != "" && e.Length > 0 && e.Offset >= 0
}

// Index holds every parsed index entry grouped by captured URL.
// All entries for a URL are retained in input order; canonical-entry
// selection happens at lookup time, never at parse time.
type Index struct {
	entries map[string][]Entry
	total   int
	skipped int
}

// Option configures index loading.
type Option func(*loader)

// WithLogger sets the logger used for parse warnings.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type loader struct {
	logger *slog.Logger
}

// Load reads a content index from r and parses it into an Index.
// The stream may be gzip-compressed; plain text is accepted too.
//
// Each line has the form "<searchable-url> <timestamp> <json-payload>".
// The payload's offset, length, and status fields are accepted both as
// JSON numbers and as JSON strings. Lines that do not split into three
// fields or whose payload is not valid JSON are skipped with a warning.
func Load(r io.Reader, opts ...Option) (*Index, error) {
	l := &loader{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip index stream: %w", err)
		}
		defer gz.Close() //nolint:errcheck // read-only stream
		return l.scan(gz)
	}
	return l.scan(br)
}

// scan parses index lines from an uncompressed stream.
func (l *loader) scan(r io.Reader) (*Index, error) {
	idx := &Index{entries: make(map[string][]Entry)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			idx.skipped++
			l.logger.Warn("skipping malformed index line",
				"line", lineNo,
				"error", err)
			continue
		}

		entry.Order = idx.total
		idx.entries[entry.URL] = append(idx.entries[entry.URL], entry)
		idx.total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index stream: %w", err)
	}

	return idx, nil
}

// payload is the JSON part of an index line. Offsets, lengths, and
// status codes appear both as numbers and as quoted strings in the
// wild, so flexInt accepts either.
type payload struct {
	URL      string  `json:"url"`
	Filename string  `json:"filename"`
	Offset   flexInt `json:"offset"`
	Length   flexInt `json:"length"`
	Mime     string  `json:"mime"`
	Status   flexInt `json:"status"`
	Digest   string  `json:"digest"`
}

// flexInt is an int64 that decodes from both JSON numbers and JSON
// strings.
type flexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer field %q: %w", s, err)
	}
	*f = flexInt(v)
	return nil
}

// parseLine parses one "<key> <timestamp> <json>" index line.
func parseLine(line string) (Entry, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	var p payload
	if err := json.Unmarshal([]byte(parts[2]), &p); err != nil {
		return Entry{}, fmt.Errorf("parse payload: %w", err)
	}
	if p.URL == "" {
		return Entry{}, fmt.Errorf("payload has no url field")
	}

	return Entry{
		Key:       parts[0],
		Timestamp: parts[1],
		URL:       p.URL,
		Filename:  p.Filename,
		Offset:    int64(p.Offset),
		Length:    int64(p.Length),
		Mime:      p.Mime,
		Status:    int(p.Status),
		Digest:    p.Digest,
	}, nil
}

// Entries returns all index entries for the given URL in input order.
// Returns nil when the URL has no entries.
func (i *Index) Entries(url string) []Entry {
	entries, ok := i.entries[url]
	if !ok {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Canonical selects the canonical entry for a URL. Preference order:
// successful (2xx) captures over redirects over everything else, then
// HTML captures over other MIME types, then the most recent entry by
// index order. Entries that cannot be extracted (no segment, no
// length) are never selected. The second return value is false when
// the URL has no selectable entry.
func (i *Index) Canonical(url string) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range i.entries[url] {
		if !e.usable() {
			continue
		}
		if !found || preferable(e, best) {
			best = e
			found = true
		}
	}
	return best, found
}

// preferable reports whether a should be selected over b.
func preferable(a, b Entry) bool {
	if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
		return ra < rb
	}
	if ma, mb := mimeRank(a.Mime), mimeRank(b.Mime); ma != mb {
		return ma < mb
	}
	return a.Order > b.Order
}

// statusRank orders status classes: success, then redirect, then the rest.
func statusRank(status int) int {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status >= 300 && status < 400:
		return 1
	default:
		return 2
	}
}

// mimeRank orders MIME types: HTML first, everything else after.
func mimeRank(mime string) int {
	if mime == "text/html" {
		return 0
	}
	return 1
}

// Len returns the total number of parsed entries.
func (i *Index) Len() int {
	return i.total
}

// Skipped returns the number of malformed lines skipped during loading.
func (i *Index) Skipped() int {
	return i.skipped
}

// URLs returns every indexed URL in alphabetical order.
func (i *Index) URLs() []string {
	urls := make([]string, 0, len(i.entries))
	for u := range i.entries {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Package warctest builds synthetic capture segments for tests.
//
// Segments built here have the same shape as real ones: each record is
// an independently-compressed gzip member, so the returned offsets and
// lengths address records exactly the way a content index does.
package warctest

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strings"
	"testing"
)

// Member describes one capture record to build.
type Member struct {
	// Type is the record type. Defaults to "response".
	Type string

	// TargetURL is the captured URL.
	TargetURL string

	// StatusLine is the HTTP status line without the protocol version.
	// Defaults to "200 OK".
	StatusLine string

	// Headers are the HTTP response headers. A Content-Length header is
	// added automatically unless the headers already carry framing.
	Headers map[string]string

	// Body is the HTTP response body, exactly as it should appear on
	// the wire (already chunked or content-encoded when the headers say
	// so).
	Body []byte
}

// Build renders one gzip-compressed record member.
func Build(tb testing.TB, m Member) []byte {
	tb.Helper()

	if m.Type == "" {
		m.Type = "response"
	}
	if m.StatusLine == "" {
		m.StatusLine = "200 OK"
	}

	var http bytes.Buffer
	http.WriteString("HTTP/1.1 " + m.StatusLine + "\r\n")
	framed := false
	for k, v := range m.Headers {
		http.WriteString(k + ": " + v + "\r\n")
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Transfer-Encoding") {
			framed = true
		}
	}
	if !framed {
		fmt.Fprintf(&http, "Content-Length: %d\r\n", len(m.Body))
	}
	http.WriteString("\r\n")
	http.Write(m.Body)

	var record bytes.Buffer
	record.WriteString("WARC/1.0\r\n")
	record.WriteString("WARC-Type: " + m.Type + "\r\n")
	record.WriteString("WARC-Target-URI: " + m.TargetURL + "\r\n")
	record.WriteString("Content-Type: application/http; msgtype=response\r\n")
	fmt.Fprintf(&record, "Content-Length: %d\r\n", http.Len())
	record.WriteString("\r\n")
	record.Write(http.Bytes())
	record.WriteString("\r\n\r\n")

	var member bytes.Buffer
	gz := gzip.NewWriter(&member)
	if _, err := gz.Write(record.Bytes()); err != nil {
		tb.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		tb.Fatal(err)
	}
	return member.Bytes()
}

// BuildSegment concatenates members into one capture segment and
// returns the segment bytes with each member's offset and length.
func BuildSegment(tb testing.TB, members ...Member) (data []byte, offsets, lengths []int64) {
	tb.Helper()

	var segment bytes.Buffer
	offsets = make([]int64, len(members))
	lengths = make([]int64, len(members))
	for i, m := range members {
		b := Build(tb, m)
		offsets[i] = int64(segment.Len())
		lengths[i] = int64(len(b))
		segment.Write(b)
	}
	return segment.Bytes(), offsets, lengths
}

// Gzip compresses b, for building content-encoded response bodies.
func Gzip(tb testing.TB, b []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(b); err != nil {
		tb.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}

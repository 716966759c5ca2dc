// Package warc extracts single HTTP response captures from capture
// segments by byte offset.
//
// Capture segments store each record as an independently-compressed
// gzip member, so a record can be read without scanning the rest of the
// segment: the content index supplies an offset and length, and Extract
// decompresses exactly that member. The embedded HTTP response is
// returned with transfer framing removed and common content encodings
// decoded, so callers always see the real payload bytes.
package warc

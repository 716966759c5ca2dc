// Package cdx reads content-index files from crawl container artifacts.
//
// A content index maps every captured URL to the byte location of its
// capture inside a capture segment. One URL may have many entries (one
// per capture attempt); this package retains all of them and selects a
// canonical entry only when asked, so callers can inspect the full
// capture history of a URL.
//
// Design decision: The index is loaded fully into memory because record
// assembly needs random per-URL lookups across the whole index, and
// real-world indexes are small relative to the capture segments they
// describe.
package cdx

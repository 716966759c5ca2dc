// Package wacztest builds synthetic container artifacts for tests.
package wacztest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Write writes a container ZIP holding the given members and returns
// its path under the test's temporary directory. Members are written
// in name order so fixtures are reproducible.
func Write(tb testing.TB, members map[string][]byte) string {
	tb.Helper()

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	path := filepath.Join(tb.TempDir(), "fixture.wacz")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close() //nolint:errcheck // test fixture

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatal(err)
		}
		if _, err := w.Write(members[name]); err != nil {
			tb.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatal(err)
	}
	return path
}

// PagesJSONL renders a page manifest member: the file-header record
// followed by the given rows, one per line.
func PagesJSONL(rows ...string) []byte {
	lines := append([]string{`{"format": "json-pages-1.0", "id": "pages", "title": "All Pages"}`}, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

// PageRow renders one page manifest row.
func PageRow(url, title string) string {
	row := map[string]any{
		"id":    "id-" + url,
		"url":   url,
		"title": title,
		"ts":    "2023-05-01T12:30:00Z",
	}
	b, err := json.Marshal(row)
	if err != nil {
		panic(err) // static input
	}
	return string(b)
}

// Index gzips index lines into a content index member.
func Index(tb testing.TB, lines ...string) []byte {
	tb.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		tb.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}

// IndexLine renders one content index line locating a capture.
func IndexLine(url, segment string, offset, length int64, mime string, status int) string {
	payload := map[string]any{
		"url":      url,
		"filename": segment,
		"offset":   offset,
		"length":   length,
		"mime":     mime,
		"status":   status,
		"digest":   "sha256:0000",
	}
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err) // static input
	}
	return fmt.Sprintf("%s 20230501123000 %s", searchableKey(url), b)
}

// searchableKey approximates the sorted URL key of an index line. The
// reader never parses it back, so a rough form is enough.
func searchableKey(url string) string {
	key := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	return strings.ReplaceAll(key, "/", ")/")
}

// Datapackage renders a datapackage.json member whose resource digests
// match the given members.
func Datapackage(members map[string][]byte, paths ...string) []byte {
	type resource struct {
		Name  string `json:"name"`
		Path  string `json:"path"`
		Hash  string `json:"hash"`
		Bytes int64  `json:"bytes"`
	}

	resources := make([]resource, 0, len(paths))
	for _, p := range paths {
		sum := sha256.Sum256(members[p])
		resources = append(resources, resource{
			Name:  filepath.Base(p),
			Path:  p,
			Hash:  "sha256:" + hex.EncodeToString(sum[:]),
			Bytes: int64(len(members[p])),
		})
	}

	b, err := json.Marshal(map[string]any{"resources": resources})
	if err != nil {
		panic(err) // static input
	}
	return b
}

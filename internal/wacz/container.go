package wacz

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/harvester/internal/cdx"
	"github.com/nao1215/harvester/internal/warc"
)

// Well-known container member names.
const (
	// PagesMember is the primary page manifest.
	PagesMember = "pages/pages.jsonl"

	// ExtraPagesMember is the secondary page manifest. It fills gaps
	// in the primary manifest and may be absent.
	ExtraPagesMember = "pages/extraPages.jsonl"

	// IndexMember is the compressed content index.
	IndexMember = "indexes/index.cdx.gz"

	// PlainIndexMember is the uncompressed content index fallback.
	PlainIndexMember = "indexes/index.cdx"

	// DatapackageMember describes the container's resources and their
	// digests.
	DatapackageMember = "datapackage.json"
)

// Required top-level directories of a container artifact.
const (
	archivePrefix = "archive/"
	indexesPrefix = "indexes/"
	pagesPrefix   = "pages/"
)

// segmentSuffix is the file suffix of capture segments under archive/.
const segmentSuffix = ".warc.gz"

// Container is an open crawl container artifact. It provides member
// access, page manifest loading, the content index, and capture
// extraction. A Container is safe for concurrent use.
//
// Design decision: Capture segments are cached fully in memory on first
// access because:
// 1. Extraction addresses segments by byte offset, which needs random access
// 2. ZIP members only stream, so offset reads would re-decompress per row
// 3. One crawl's segments comfortably fit in memory next to its records
type Container struct {
	path    string
	zr      *zip.ReadCloser
	members map[string]*zip.File
	logger  *slog.Logger

	mu       sync.Mutex
	segments map[string][]byte
	index    *cdx.Index
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for load warnings.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Open opens a container artifact and validates its layout. It fails
// fast with ErrInvalidContainer when the file is not a ZIP or the
// archive/, indexes/, pages/ structure is absent, so no partially
// usable Container ever escapes.
func Open(path string, opts ...Option) (*Container, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidContainer, path, err)
	}

	c := &Container{
		path:     path,
		zr:       zr,
		members:  make(map[string]*zip.File, len(zr.File)),
		segments: make(map[string][]byte),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, f := range zr.File {
		c.members[f.Name] = f
	}

	if err := c.validateLayout(); err != nil {
		_ = zr.Close()
		return nil, err
	}
	return c, nil
}

// validateLayout checks that every required top-level directory has at
// least one member.
func (c *Container) validateLayout() error {
	var missing []string
	for _, prefix := range []string{archivePrefix, indexesPrefix, pagesPrefix} {
		found := false
		for name := range c.members {
			if strings.HasPrefix(name, prefix) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, prefix)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s is missing %s", ErrInvalidContainer, c.path, strings.Join(missing, ", "))
	}
	return nil
}

// Path returns the container's file path.
func (c *Container) Path() string {
	return c.path
}

// Member opens a named container member for reading. Returns a wrapped
// ErrMemberNotFound when the member does not exist.
func (c *Container) Member(name string) (io.ReadCloser, error) {
	f, ok := c.members[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %s: %w", name, err)
	}
	return rc, nil
}

// Segments returns the capture segment member names in alphabetical
// order.
func (c *Container) Segments() []string {
	var names []string
	for name := range c.members {
		if strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, segmentSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SegmentReaderAt returns a random-access view of one capture segment
// and its size. The name may be a full member path or the bare segment
// file name used by content-index entries. The segment is read into
// memory once and cached.
func (c *Container) SegmentReaderAt(name string) (io.ReaderAt, int64, error) {
	member := name
	if _, ok := c.members[member]; !ok && !strings.Contains(name, "/") {
		member = archivePrefix + name
	}

	c.mu.Lock()
	data, ok := c.segments[member]
	c.mu.Unlock()
	if ok {
		return bytes.NewReader(data), int64(len(data)), nil
	}

	rc, err := c.Member(member)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close() //nolint:errcheck // read-only member

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, 0, fmt.Errorf("read segment %s: %w", member, err)
	}

	c.mu.Lock()
	c.segments[member] = data
	c.mu.Unlock()
	return bytes.NewReader(data), int64(len(data)), nil
}

// Index loads the container's content index. The compressed index is
// preferred; the uncompressed fallback is accepted. The parsed index is
// cached, so repeated calls are cheap. A container without an index
// member yields a wrapped ErrMemberNotFound.
func (c *Container) Index() (*cdx.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index != nil {
		return c.index, nil
	}

	member := IndexMember
	if _, ok := c.members[member]; !ok {
		member = PlainIndexMember
	}

	rc, err := c.Member(member)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only member

	idx, err := cdx.Load(rc, cdx.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("load content index %s: %w", member, err)
	}
	if idx.Skipped() > 0 {
		c.logger.Warn("content index contained malformed lines",
			"member", member,
			"skipped", idx.Skipped())
	}

	c.index = idx
	return idx, nil
}

// ExtractByURL extracts the capture of a URL's canonical index entry.
// Returns a wrapped ErrNoIndexEntry when the index has no extractable
// entry for the URL.
func (c *Container) ExtractByURL(url string) (*warc.Capture, error) {
	idx, err := c.Index()
	if err != nil {
		return nil, err
	}

	entry, ok := idx.Canonical(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoIndexEntry, url)
	}

	ra, _, err := c.SegmentReaderAt(entry.Filename)
	if err != nil {
		return nil, err
	}
	capture, err := warc.Extract(ra, entry.Offset, entry.Length)
	if err != nil {
		return nil, fmt.Errorf("extract %s from %s: %w", url, entry.Filename, err)
	}
	return capture, nil
}

// datapackage mirrors the resource listing of datapackage.json.
type datapackage struct {
	Resources []struct {
		Name  string `json:"name"`
		Path  string `json:"path"`
		Hash  string `json:"hash"`
		Bytes int64  `json:"bytes"`
	} `json:"resources"`
}

// Verify recomputes the SHA-256 digest of every resource listed in
// datapackage.json and reports all mismatches. Containers without a
// datapackage member cannot be verified and yield a wrapped
// ErrMemberNotFound.
func (c *Container) Verify() error {
	rc, err := c.Member(DatapackageMember)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // read-only member

	var pkg datapackage
	if err := json.NewDecoder(rc).Decode(&pkg); err != nil {
		return fmt.Errorf("parse %s: %w", DatapackageMember, err)
	}

	var errs []error
	for _, res := range pkg.Resources {
		digest, ok := strings.CutPrefix(res.Hash, "sha256:")
		if !ok {
			// Digest algorithms other than SHA-256 are not produced by
			// supported crawlers.
			c.logger.Warn("skipping resource with unsupported digest",
				"path", res.Path,
				"hash", res.Hash)
			continue
		}

		sum, err := c.memberSHA256(res.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !strings.EqualFold(sum, digest) {
			errs = append(errs, fmt.Errorf("digest mismatch for %s: got %s, recorded %s", res.Path, sum, digest))
		}
	}
	return errors.Join(errs...)
}

// memberSHA256 computes the SHA-256 digest of a member's content.
func (c *Container) memberSHA256(name string) (string, error) {
	rc, err := c.Member(name)
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck // read-only member

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hash member %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Close releases the underlying ZIP handle.
func (c *Container) Close() error {
	return c.zr.Close()
}

package records

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/harvester/internal/cdx"
	"github.com/nao1215/harvester/internal/content"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/wacz"
	"github.com/nao1215/harvester/internal/warc"
)

// defaultKeywordLimit caps how many keywords a record carries.
const defaultKeywordLimit = 10

// Stage identifies how far an assembly run has progressed. Stages
// advance strictly forward; see ErrInvalidStage.
type Stage int

// Assembly stages, in execution order.
const (
	// StageNew is a freshly constructed assembler.
	StageNew Stage = iota

	// StageInventoryLoaded means the page manifests are merged into
	// one deduplicated URL inventory.
	StageInventoryLoaded

	// StageIndexed means every inventory URL has its canonical content
	// index entry resolved, or a logged skip when none is usable.
	StageIndexed

	// StageExtracted means capture payloads have been extracted and
	// parsed for every row with an eligible canonical entry.
	StageExtracted

	// StageReconciled means the prior inventory has been diffed and
	// deleted URLs recorded.
	StageReconciled

	// StageComplete means Finalize produced the record set. The
	// assembler is spent and accepts no further calls.
	StageComplete
)

// String returns the stage name for logs and error messages.
func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageInventoryLoaded:
		return "inventory-loaded"
	case StageIndexed:
		return "indexed"
	case StageExtracted:
		return "extracted"
	case StageReconciled:
		return "deletions-reconciled"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// row is one in-progress record: a merged manifest entry plus whatever
// the later stages resolved for it.
type row struct {
	// page holds the merged manifest fields.
	page model.Page

	// position is the order of first appearance across the manifests.
	// Output rows keep this order.
	position int

	// entry is the canonical content index entry, nil when the index
	// has no usable entry for the URL.
	entry *cdx.Entry

	// failed marks a row whose capture could not be extracted. Such a
	// row is emitted with manifest fields only.
	failed bool

	// doc is the parsed payload when extraction and parsing succeeded.
	doc *content.Document

	// rawHTML is the payload copy kept under payload retention.
	rawHTML []byte
}

// Assembler joins page manifests, the content index, and capture
// segments into a finalized record set. It runs as a linear stage
// machine: LoadInventory, AttachIndex, Extract, ReconcileDeletions,
// Finalize, each exactly once and in that order.
//
// Design decision: The stages are separate methods rather than one
// monolithic run because:
//  1. Each stage has its own inputs, so callers supply only what they have
//  2. Per-row problems stay contained in the stage that met them
//  3. The pipeline can time and log each stage on its own
//
// Per-row problems (no index entry, extraction failure, unparseable
// payload) degrade that single record and are logged; they never fail
// the run. Only structural misuse and context cancellation return
// errors.
type Assembler struct {
	logger       *slog.Logger
	rules        content.Rules
	workers      int
	keepHTML     bool
	keywordLimit int

	stage   Stage
	rows    []*row
	byURL   map[string]int
	deleted []string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger for stage progress and per-row warnings.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithWorkers sets how many capture extractions may run at once.
// Defaults to 1, which processes rows strictly in inventory order.
// Higher values keep the output order unchanged because every worker
// writes only to its own row.
func WithWorkers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithRules sets the metadata extraction rules applied to HTML
// payloads. Defaults to content.DefaultRules(). An empty non-nil rule
// set disables metadata extraction.
func WithRules(rules content.Rules) Option {
	return func(a *Assembler) {
		if rules != nil {
			a.rules = rules
		}
	}
}

// WithRawHTML controls payload retention. When enabled, each record
// whose payload was extracted carries a base64 copy of the raw HTML.
func WithRawHTML(keep bool) Option {
	return func(a *Assembler) {
		a.keepHTML = keep
	}
}

// WithKeywordLimit caps how many keywords are derived per record.
func WithKeywordLimit(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.keywordLimit = n
		}
	}
}

// New returns an assembler at StageNew.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		logger:       slog.Default(),
		rules:        content.DefaultRules(),
		workers:      1,
		keywordLimit: defaultKeywordLimit,
		stage:        StageNew,
		byURL:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stage returns the assembler's current stage.
func (a *Assembler) Stage() Stage {
	return a.stage
}

// require checks that the assembler sits at the stage an operation
// needs.
func (a *Assembler) require(want Stage, op string) error {
	if a.stage != want {
		return fmt.Errorf("%w: %s requires stage %q, current stage is %q", ErrInvalidStage, op, want, a.stage)
	}
	return nil
}

// LoadInventory merges the primary and secondary page manifests into
// one deduplicated URL inventory. Rows keep the position of their first
// appearance. For duplicate URLs within the primary manifest the later
// row's populated fields win; rows from the secondary manifest never
// overwrite fields the primary already populated and only fill gaps.
func (a *Assembler) LoadInventory(pages, extraPages []model.Page) error {
	if err := a.require(StageNew, "LoadInventory"); err != nil {
		return err
	}
	for i := range pages {
		a.add(pages[i], true)
	}
	for i := range extraPages {
		a.add(extraPages[i], false)
	}
	a.stage = StageInventoryLoaded
	a.logger.Info("inventory loaded",
		"pages", len(pages), "extra_pages", len(extraPages), "urls", len(a.rows))
	return nil
}

// add merges one manifest row into the inventory.
func (a *Assembler) add(p model.Page, primary bool) {
	if p.URL == "" {
		return
	}
	i, seen := a.byURL[p.URL]
	if !seen {
		a.byURL[p.URL] = len(a.rows)
		a.rows = append(a.rows, &row{page: p, position: len(a.rows)})
		return
	}
	merge(&a.rows[i].page, p, primary)
}

// merge folds src into dst. With overwrite, populated src fields
// replace dst's; otherwise src only fills fields dst left empty.
func merge(dst *model.Page, src model.Page, overwrite bool) {
	if src.ID != "" && (overwrite || dst.ID == "") {
		dst.ID = src.ID
	}
	if src.Title != "" && (overwrite || dst.Title == "") {
		dst.Title = src.Title
	}
	if !src.Timestamp.IsZero() && (overwrite || dst.Timestamp.IsZero()) {
		dst.Timestamp = src.Timestamp
	}
	if src.HTTPStatus != 0 && (overwrite || dst.HTTPStatus == 0) {
		dst.HTTPStatus = src.HTTPStatus
	}
	if src.LoadState != 0 && (overwrite || dst.LoadState == 0) {
		dst.LoadState = src.LoadState
	}
	if src.Text != "" && (overwrite || dst.Text == "") {
		dst.Text = src.Text
	}
	dst.Seed = dst.Seed || src.Seed
}

// AttachIndex resolves the canonical content index entry for every
// inventory URL. URLs without a usable entry are logged and emitted
// later with manifest fields only. A nil index is tolerated; every row
// then degrades the same way.
func (a *Assembler) AttachIndex(idx *cdx.Index) error {
	if err := a.require(StageInventoryLoaded, "AttachIndex"); err != nil {
		return err
	}
	if idx == nil {
		a.logger.Warn("no content index attached, all records carry manifest fields only")
		a.stage = StageIndexed
		return nil
	}
	resolved := 0
	for _, r := range a.rows {
		e, ok := idx.Canonical(r.page.URL)
		if !ok {
			a.logger.Warn("no usable index entry", "url", r.page.URL)
			continue
		}
		entry := e
		r.entry = &entry
		resolved++
	}
	a.stage = StageIndexed
	a.logger.Info("index attached", "resolved", resolved, "missing", len(a.rows)-resolved)
	return nil
}

// extractable reports whether a canonical entry points at a payload
// worth parsing: a successful HTML capture.
func extractable(e *cdx.Entry) bool {
	return e.Status >= 200 && e.Status < 300 && e.IsHTML()
}

// Extract reads and parses the capture payload for every row whose
// canonical entry is a successful HTML capture. Rows with non-HTML or
// non-2xx entries keep their index fields and skip content extraction.
// Extraction failures degrade the affected row to manifest fields only
// and never fail the run; the only fatal condition is context
// cancellation. A nil container skips extraction entirely.
func (a *Assembler) Extract(ctx context.Context, c *wacz.Container) error {
	if err := a.require(StageIndexed, "Extract"); err != nil {
		return err
	}
	if c == nil {
		a.logger.Debug("no container supplied, skipping content extraction")
		a.stage = StageExtracted
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	scheduled := 0
	for _, r := range a.rows {
		if r.entry == nil {
			continue
		}
		if !extractable(r.entry) {
			a.logger.Debug("capture not eligible for content extraction",
				"url", r.page.URL, "mime", r.entry.Mime, "http_status", r.entry.Status)
			continue
		}
		scheduled++
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.extractRow(c, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("content extraction canceled: %w", err)
	}
	a.stage = StageExtracted
	a.logger.Info("content extracted", "captures", scheduled)
	return nil
}

// extractRow extracts and parses one row's capture. Problems are logged
// and degrade the row, never the run. A failed extraction drops the
// row's index fields because the entry's offset and length did not
// address a readable capture; a failed parse keeps them because the
// capture itself was read.
func (a *Assembler) extractRow(c *wacz.Container, r *row) {
	ra, size, err := c.SegmentReaderAt(r.entry.Filename)
	if err != nil {
		r.failed = true
		a.logger.Warn("capture segment unavailable",
			"url", r.page.URL, "segment", r.entry.Filename, "error", err)
		return
	}
	if r.entry.Offset+r.entry.Length > size {
		r.failed = true
		a.logger.Warn("capture range exceeds segment size",
			"url", r.page.URL, "segment", r.entry.Filename,
			"offset", r.entry.Offset, "length", r.entry.Length, "segment_size", size)
		return
	}

	capture, err := warc.Extract(ra, r.entry.Offset, r.entry.Length)
	if err != nil {
		r.failed = true
		a.logger.Warn("capture extraction failed",
			"url", r.page.URL, "segment", r.entry.Filename,
			"offset", r.entry.Offset, "length", r.entry.Length, "error", err)
		return
	}
	if a.keepHTML {
		r.rawHTML = capture.Body
	}

	doc, err := content.Parse(bytes.NewReader(capture.Body), capture.Header.Get("Content-Type"), a.rules)
	if err != nil {
		a.logger.Warn("content parsing failed", "url", r.page.URL, "error", err)
		return
	}
	r.doc = doc
}

// ReconcileDeletions diffs a prior URL inventory against the current
// one. Every prior URL absent from the current inventory becomes a
// deleted record, appended after the present records in prior-inventory
// order. Duplicate prior URLs count once.
func (a *Assembler) ReconcileDeletions(prior []string) error {
	if err := a.require(StageExtracted, "ReconcileDeletions"); err != nil {
		return err
	}
	seen := make(map[string]bool, len(prior))
	for _, url := range prior {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		if _, ok := a.byURL[url]; ok {
			continue
		}
		a.deleted = append(a.deleted, url)
	}
	a.stage = StageReconciled
	a.logger.Info("deletions reconciled", "prior", len(prior), "deleted", len(a.deleted))
	return nil
}

// Finalize assembles the finished record set: present records in
// first-appearance order followed by deleted records in prior-inventory
// order, all sharing one uniform column superset. The assembler is
// spent afterwards.
func (a *Assembler) Finalize() (*model.RecordSet, error) {
	if err := a.require(StageReconciled, "Finalize"); err != nil {
		return nil, err
	}
	recs := make([]model.Record, 0, len(a.rows)+len(a.deleted))
	for _, r := range a.rows {
		recs = append(recs, a.assembleRecord(r))
	}
	for _, url := range a.deleted {
		recs = append(recs, model.NewDeletedRecord(url))
	}
	a.stage = StageComplete

	set := model.NewRecordSet(recs)
	a.logger.Info("record set finalized",
		"records", set.Len(), "active", set.Active(), "deleted", set.Deleted(),
		"columns", len(set.Columns()))
	return set, nil
}

// assembleRecord builds the output record for one row.
func (a *Assembler) assembleRecord(r *row) model.Record {
	rec := model.Record{
		URL:        r.page.URL,
		Status:     model.StatusActive,
		Title:      r.page.Title,
		Timestamp:  r.page.Timestamp,
		HTTPStatus: r.page.HTTPStatus,
		Fulltext:   content.NormalizeText(r.page.Text),
	}

	if r.entry != nil && !r.failed {
		rec.Mime = r.entry.Mime
		rec.Segment = r.entry.Filename
		offset, length := r.entry.Offset, r.entry.Length
		rec.Offset = &offset
		rec.Length = &length
		rec.Digest = r.entry.Digest
		if r.entry.Status != 0 {
			rec.HTTPStatus = r.entry.Status
		}
		if t := r.entry.Time(); !t.IsZero() {
			rec.Timestamp = t
		}
	}

	if r.doc != nil {
		if rec.Title == "" {
			rec.Title = r.doc.Title
		}
		if r.doc.Fulltext != "" {
			rec.Fulltext = r.doc.Fulltext
		}
		if len(r.doc.Fields) > 0 {
			rec.Extras = r.doc.Fields
		}
	}
	if rec.Fulltext != "" {
		if keywords := content.Keywords(rec.Fulltext, a.keywordLimit); len(keywords) > 0 {
			rec.Keywords = strings.Join(keywords, ",")
		}
	}
	if len(r.rawHTML) > 0 {
		rec.HTMLB64 = base64.StdEncoding.EncodeToString(r.rawHTML)
	}
	return rec
}

// Assemble runs the whole stage machine over one opened container: load
// its manifests, attach its index, extract content, reconcile the prior
// inventory, finalize. Prior may be nil when no earlier run exists.
func Assemble(ctx context.Context, c *wacz.Container, prior []string, opts ...Option) (*model.RecordSet, error) {
	a := New(opts...)

	pages, err := c.Pages()
	if err != nil {
		return nil, err
	}
	extraPages, err := c.ExtraPages()
	if err != nil {
		return nil, err
	}
	if err := a.LoadInventory(pages, extraPages); err != nil {
		return nil, err
	}

	idx, err := c.Index()
	if err != nil {
		return nil, err
	}
	if err := a.AttachIndex(idx); err != nil {
		return nil, err
	}
	if err := a.Extract(ctx, c); err != nil {
		return nil, err
	}
	if err := a.ReconcileDeletions(prior); err != nil {
		return nil, err
	}
	return a.Finalize()
}

package records

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/wacz"
	"github.com/nao1215/harvester/internal/wacz/wacztest"
	"github.com/nao1215/harvester/internal/warc/warctest"
)

// discardLogger silences stage progress and per-row warnings in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openContainer writes the members as a container and opens it.
func openContainer(t *testing.T, members map[string][]byte) *wacz.Container {
	t.Helper()

	path := wacztest.Write(t, members)
	c, err := wacz.Open(path, wacz.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() returned error: %v", err)
		}
	})
	return c
}

// htmlMember builds one successful HTML capture.
func htmlMember(url, body string) warctest.Member {
	return warctest.Member{
		TargetURL: url,
		Headers:   map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body:      []byte(body),
	}
}

// runWithoutContainer drives the stage machine over in-memory manifests
// with no index and no container.
func runWithoutContainer(t *testing.T, pages, extraPages []model.Page, prior []string) *model.RecordSet {
	t.Helper()

	a := New(WithLogger(discardLogger()))
	if err := a.LoadInventory(pages, extraPages); err != nil {
		t.Fatalf("LoadInventory() returned error: %v", err)
	}
	if err := a.AttachIndex(nil); err != nil {
		t.Fatalf("AttachIndex() returned error: %v", err)
	}
	if err := a.Extract(context.Background(), nil); err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}
	if err := a.ReconcileDeletions(prior); err != nil {
		t.Fatalf("ReconcileDeletions() returned error: %v", err)
	}
	set, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() returned error: %v", err)
	}
	return set
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	t.Run("assembles present and deleted records in canonical order", func(t *testing.T) {
		t.Parallel()

		body := `<html><head><title>Alpha Page</title>` +
			`<meta property="og:title" content="Alpha Social"></head>` +
			`<body><p>alpha harvest content harvest</p></body></html>`
		segment, offsets, lengths := warctest.BuildSegment(t, htmlMember("https://site.example/a", body))

		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl": wacztest.PagesJSONL(
				wacztest.PageRow("https://site.example/a", "Alpha"),
				wacztest.PageRow("https://site.example/b", "Beta"),
			),
			"indexes/index.cdx.gz": wacztest.Index(t,
				wacztest.IndexLine("https://site.example/a", "data.warc.gz", offsets[0], lengths[0], "text/html", 200),
			),
		}
		c := openContainer(t, members)

		prior := []string{"https://site.example/a", "https://site.example/b", "https://site.example/c"}
		set, err := Assemble(context.Background(), c, prior, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("Assemble() returned error: %v", err)
		}

		wantURLs := []string{"https://site.example/a", "https://site.example/b", "https://site.example/c"}
		if got := set.URLs(); !reflect.DeepEqual(got, wantURLs) {
			t.Fatalf("URLs() = %v, want %v", got, wantURLs)
		}
		recs := set.Records()

		recA := recs[0]
		if recA.Status != model.StatusActive {
			t.Errorf("record A status = %q, want %q", recA.Status, model.StatusActive)
		}
		if recA.Title != "Alpha" {
			t.Errorf("record A title = %q, want manifest title %q", recA.Title, "Alpha")
		}
		if recA.Segment != "data.warc.gz" {
			t.Errorf("record A segment = %q, want %q", recA.Segment, "data.warc.gz")
		}
		if recA.Offset == nil || *recA.Offset != offsets[0] {
			t.Errorf("record A offset = %v, want %d", recA.Offset, offsets[0])
		}
		if recA.Length == nil || *recA.Length != lengths[0] {
			t.Errorf("record A length = %v, want %d", recA.Length, lengths[0])
		}
		if recA.Mime != "text/html" {
			t.Errorf("record A mime = %q, want %q", recA.Mime, "text/html")
		}
		if recA.HTTPStatus != 200 {
			t.Errorf("record A http status = %d, want 200", recA.HTTPStatus)
		}
		if recA.Digest != "sha256:0000" {
			t.Errorf("record A digest = %q, want %q", recA.Digest, "sha256:0000")
		}
		if recA.Fulltext != "alpha harvest content harvest" {
			t.Errorf("record A fulltext = %q, want the visible body text", recA.Fulltext)
		}
		if recA.Keywords != "harvest,alpha,content" {
			t.Errorf("record A keywords = %q, want %q", recA.Keywords, "harvest,alpha,content")
		}
		if recA.Extras["og_title"] != "Alpha Social" {
			t.Errorf("record A og_title = %q, want %q", recA.Extras["og_title"], "Alpha Social")
		}

		recB := recs[1]
		if recB.Status != model.StatusActive {
			t.Errorf("record B status = %q, want %q", recB.Status, model.StatusActive)
		}
		if recB.Title != "Beta" {
			t.Errorf("record B title = %q, want %q", recB.Title, "Beta")
		}
		if recB.Segment != "" || recB.Offset != nil || recB.Length != nil || recB.Mime != "" || recB.Digest != "" {
			t.Errorf("record B carries index fields despite having no index entry: %+v", recB)
		}
		if recB.Fulltext != "" || recB.Keywords != "" {
			t.Errorf("record B carries content fields despite having no capture: %+v", recB)
		}

		recC := recs[2]
		if recC.Status != model.StatusDeleted {
			t.Errorf("record C status = %q, want %q", recC.Status, model.StatusDeleted)
		}
		for _, col := range set.Columns() {
			if col == "url" || col == "status" {
				continue
			}
			if _, populated := recC.Value(col); populated {
				t.Errorf("deleted record populates column %q, want url and status only", col)
			}
		}
	})

	t.Run("selects the successful html capture among candidates", func(t *testing.T) {
		t.Parallel()

		const url = "https://site.example/page"
		redirect := warctest.Member{
			TargetURL:  url,
			StatusLine: "301 Moved Permanently",
			Headers:    map[string]string{"Location": "https://site.example/page/", "Content-Type": "text/html"},
		}
		html := htmlMember(url, "<html><body>current revision</body></html>")
		plain := warctest.Member{
			TargetURL: url,
			Headers:   map[string]string{"Content-Type": "text/plain"},
			Body:      []byte("plain text sibling"),
		}
		segment, offsets, lengths := warctest.BuildSegment(t, redirect, html, plain)

		lines := []string{
			wacztest.IndexLine(url, "data.warc.gz", offsets[0], lengths[0], "text/html", 301),
			wacztest.IndexLine(url, "data.warc.gz", offsets[1], lengths[1], "text/html", 200),
			wacztest.IndexLine(url, "data.warc.gz", offsets[2], lengths[2], "text/plain", 200),
		}
		orderings := [][]int{{0, 1, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

		for _, order := range orderings {
			permuted := make([]string, 0, len(lines))
			for _, i := range order {
				permuted = append(permuted, lines[i])
			}
			members := map[string][]byte{
				"archive/data.warc.gz": segment,
				"pages/pages.jsonl":    wacztest.PagesJSONL(wacztest.PageRow(url, "Page")),
				"indexes/index.cdx.gz": wacztest.Index(t, permuted...),
			}
			c := openContainer(t, members)

			set, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()))
			if err != nil {
				t.Fatalf("Assemble() returned error: %v", err)
			}
			rec := set.Records()[0]
			if rec.Offset == nil || *rec.Offset != offsets[1] {
				t.Errorf("ordering %v selected offset %v, want the 200 html capture at %d", order, rec.Offset, offsets[1])
			}
			if rec.HTTPStatus != 200 || rec.Mime != "text/html" {
				t.Errorf("ordering %v selected status %d mime %q, want 200 text/html", order, rec.HTTPStatus, rec.Mime)
			}
			if rec.Fulltext != "current revision" {
				t.Errorf("ordering %v fulltext = %q, want %q", order, rec.Fulltext, "current revision")
			}
		}
	})

	t.Run("degrades rows whose captures cannot be read", func(t *testing.T) {
		t.Parallel()

		segment, offsets, lengths := warctest.BuildSegment(t,
			htmlMember("https://site.example/a", "<html><body>a</body></html>"),
			htmlMember("https://site.example/b", "<html><body>b</body></html>"),
		)
		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl": wacztest.PagesJSONL(
				wacztest.PageRow("https://site.example/a", "Alpha"),
				wacztest.PageRow("https://site.example/b", "Beta"),
			),
			"indexes/index.cdx.gz": wacztest.Index(t,
				// Offset into the middle of the first member.
				wacztest.IndexLine("https://site.example/a", "data.warc.gz", offsets[0]+3, lengths[0], "text/html", 200),
				// Segment that does not exist in the container.
				wacztest.IndexLine("https://site.example/b", "ghost.warc.gz", offsets[1], lengths[1], "text/html", 200),
			),
		}
		c := openContainer(t, members)

		set, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("Assemble() returned error: %v", err)
		}
		if set.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", set.Len())
		}
		for _, rec := range set.Records() {
			if rec.Status != model.StatusActive {
				t.Errorf("record %s status = %q, want %q", rec.URL, rec.Status, model.StatusActive)
			}
			if rec.Title == "" {
				t.Errorf("record %s lost its manifest title", rec.URL)
			}
			if rec.Segment != "" || rec.Offset != nil || rec.Length != nil || rec.Digest != "" {
				t.Errorf("record %s keeps index fields despite failed extraction: %+v", rec.URL, rec)
			}
			if rec.Fulltext != "" || rec.Keywords != "" || rec.HTMLB64 != "" {
				t.Errorf("record %s carries content fields despite failed extraction: %+v", rec.URL, rec)
			}
		}
	})

	t.Run("yields identical record sets across runs", func(t *testing.T) {
		t.Parallel()

		segment, offsets, lengths := warctest.BuildSegment(t,
			htmlMember("https://site.example/a", "<html><body>stable body</body></html>"),
		)
		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl": wacztest.PagesJSONL(
				wacztest.PageRow("https://site.example/a", "Alpha"),
				wacztest.PageRow("https://site.example/b", "Beta"),
			),
			"indexes/index.cdx.gz": wacztest.Index(t,
				wacztest.IndexLine("https://site.example/a", "data.warc.gz", offsets[0], lengths[0], "text/html", 200),
			),
		}
		c := openContainer(t, members)
		prior := []string{"https://site.example/gone"}

		first, err := Assemble(context.Background(), c, prior, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("first Assemble() returned error: %v", err)
		}
		second, err := Assemble(context.Background(), c, prior, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("second Assemble() returned error: %v", err)
		}

		if !reflect.DeepEqual(first.Records(), second.Records()) {
			t.Error("records differ between two runs over the same container")
		}
		if !reflect.DeepEqual(first.Columns(), second.Columns()) {
			t.Errorf("columns differ between runs: %v vs %v", first.Columns(), second.Columns())
		}
	})

	t.Run("parallel extraction matches sequential output", func(t *testing.T) {
		t.Parallel()

		urls := []string{
			"https://site.example/1",
			"https://site.example/2",
			"https://site.example/3",
			"https://site.example/4",
		}
		captures := make([]warctest.Member, 0, len(urls))
		rows := make([]string, 0, len(urls))
		for _, u := range urls {
			captures = append(captures, htmlMember(u, "<html><body>content for "+u+"</body></html>"))
			rows = append(rows, wacztest.PageRow(u, "Title "+u))
		}
		segment, offsets, lengths := warctest.BuildSegment(t, captures...)

		lines := make([]string, 0, len(urls))
		for i, u := range urls {
			lines = append(lines, wacztest.IndexLine(u, "data.warc.gz", offsets[i], lengths[i], "text/html", 200))
		}
		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl":    wacztest.PagesJSONL(rows...),
			"indexes/index.cdx.gz": wacztest.Index(t, lines...),
		}
		c := openContainer(t, members)

		sequential, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()), WithWorkers(1))
		if err != nil {
			t.Fatalf("sequential Assemble() returned error: %v", err)
		}
		parallel, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()), WithWorkers(4))
		if err != nil {
			t.Fatalf("parallel Assemble() returned error: %v", err)
		}
		if !reflect.DeepEqual(sequential.Records(), parallel.Records()) {
			t.Error("parallel extraction changed the assembled records")
		}
	})

	t.Run("retains base64 payload when enabled", func(t *testing.T) {
		t.Parallel()

		body := "<html><body>retained payload</body></html>"
		segment, offsets, lengths := warctest.BuildSegment(t, htmlMember("https://site.example/a", body))
		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl":    wacztest.PagesJSONL(wacztest.PageRow("https://site.example/a", "Alpha")),
			"indexes/index.cdx.gz": wacztest.Index(t,
				wacztest.IndexLine("https://site.example/a", "data.warc.gz", offsets[0], lengths[0], "text/html", 200),
			),
		}
		c := openContainer(t, members)

		withRaw, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()), WithRawHTML(true))
		if err != nil {
			t.Fatalf("Assemble() returned error: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(withRaw.Records()[0].HTMLB64)
		if err != nil {
			t.Fatalf("html_b64 is not valid base64: %v", err)
		}
		if string(decoded) != body {
			t.Errorf("decoded payload = %q, want %q", decoded, body)
		}

		withoutRaw, err := Assemble(context.Background(), c, nil, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("Assemble() returned error: %v", err)
		}
		if got := withoutRaw.Records()[0].HTMLB64; got != "" {
			t.Errorf("html_b64 = %q without retention, want empty", got)
		}
	})

	t.Run("aborts on canceled context", func(t *testing.T) {
		t.Parallel()

		segment, offsets, lengths := warctest.BuildSegment(t, htmlMember("https://site.example/a", "<html></html>"))
		members := map[string][]byte{
			"archive/data.warc.gz": segment,
			"pages/pages.jsonl":    wacztest.PagesJSONL(wacztest.PageRow("https://site.example/a", "Alpha")),
			"indexes/index.cdx.gz": wacztest.Index(t,
				wacztest.IndexLine("https://site.example/a", "data.warc.gz", offsets[0], lengths[0], "text/html", 200),
			),
		}
		c := openContainer(t, members)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := Assemble(ctx, c, nil, WithLogger(discardLogger())); !errors.Is(err, context.Canceled) {
			t.Errorf("Assemble() error = %v, want context.Canceled", err)
		}
	})
}

func TestLoadInventory(t *testing.T) {
	t.Parallel()

	t.Run("keeps first-appearance order across manifests", func(t *testing.T) {
		t.Parallel()

		pages := []model.Page{
			{URL: "https://site.example/a", Title: "A"},
			{URL: "https://site.example/b", Title: "B"},
		}
		extraPages := []model.Page{
			{URL: "https://site.example/c", Title: "C"},
			{URL: "https://site.example/a", Title: "A again"},
		}
		set := runWithoutContainer(t, pages, extraPages, nil)

		want := []string{"https://site.example/a", "https://site.example/b", "https://site.example/c"}
		if got := set.URLs(); !reflect.DeepEqual(got, want) {
			t.Errorf("URLs() = %v, want %v", got, want)
		}
	})

	t.Run("secondary manifest fills only missing fields", func(t *testing.T) {
		t.Parallel()

		pages := []model.Page{{URL: "https://site.example/a", Title: "Primary"}}
		extraPages := []model.Page{{URL: "https://site.example/a", Title: "Secondary", Text: "extra body text"}}
		set := runWithoutContainer(t, pages, extraPages, nil)

		rec := set.Records()[0]
		if rec.Title != "Primary" {
			t.Errorf("title = %q, want the primary manifest title %q", rec.Title, "Primary")
		}
		if rec.Fulltext != "extra body text" {
			t.Errorf("fulltext = %q, want the gap filled from the secondary manifest", rec.Fulltext)
		}
	})

	t.Run("later primary rows overwrite earlier ones", func(t *testing.T) {
		t.Parallel()

		pages := []model.Page{
			{URL: "https://site.example/a", Title: "Old", HTTPStatus: 200},
			{URL: "https://site.example/a", Title: "New"},
		}
		set := runWithoutContainer(t, pages, nil, nil)

		rec := set.Records()[0]
		if rec.Title != "New" {
			t.Errorf("title = %q, want %q", rec.Title, "New")
		}
		if rec.HTTPStatus != 200 {
			t.Errorf("http status = %d, want the earlier populated value 200", rec.HTTPStatus)
		}
	})

	t.Run("drops rows without a url", func(t *testing.T) {
		t.Parallel()

		set := runWithoutContainer(t, []model.Page{{Title: "no url"}}, nil, nil)
		if set.Len() != 0 {
			t.Errorf("Len() = %d, want 0", set.Len())
		}
	})
}

func TestReconcileDeletions(t *testing.T) {
	t.Parallel()

	t.Run("appends deleted records in prior inventory order", func(t *testing.T) {
		t.Parallel()

		pages := []model.Page{{URL: "https://site.example/kept"}}
		prior := []string{
			"https://site.example/gone-2",
			"https://site.example/kept",
			"https://site.example/gone-1",
		}
		set := runWithoutContainer(t, pages, nil, prior)

		want := []string{
			"https://site.example/kept",
			"https://site.example/gone-2",
			"https://site.example/gone-1",
		}
		if got := set.URLs(); !reflect.DeepEqual(got, want) {
			t.Errorf("URLs() = %v, want %v", got, want)
		}
		if set.Deleted() != 2 {
			t.Errorf("Deleted() = %d, want 2", set.Deleted())
		}
	})

	t.Run("counts duplicate prior urls once", func(t *testing.T) {
		t.Parallel()

		prior := []string{"https://site.example/gone", "https://site.example/gone", ""}
		set := runWithoutContainer(t, nil, nil, prior)
		if set.Deleted() != 1 {
			t.Errorf("Deleted() = %d, want 1", set.Deleted())
		}
	})

	t.Run("empty prior inventory deletes nothing", func(t *testing.T) {
		t.Parallel()

		set := runWithoutContainer(t, []model.Page{{URL: "https://site.example/a"}}, nil, nil)
		if set.Deleted() != 0 {
			t.Errorf("Deleted() = %d, want 0", set.Deleted())
		}
	})
}

func TestAssemblerStageMachine(t *testing.T) {
	t.Parallel()

	t.Run("rejects operations out of order", func(t *testing.T) {
		t.Parallel()

		a := New(WithLogger(discardLogger()))
		if err := a.AttachIndex(nil); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("AttachIndex() error = %v, want ErrInvalidStage", err)
		}
		if err := a.Extract(context.Background(), nil); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("Extract() error = %v, want ErrInvalidStage", err)
		}
		if err := a.ReconcileDeletions(nil); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("ReconcileDeletions() error = %v, want ErrInvalidStage", err)
		}
		if _, err := a.Finalize(); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("Finalize() error = %v, want ErrInvalidStage", err)
		}
	})

	t.Run("advances through every stage exactly once", func(t *testing.T) {
		t.Parallel()

		a := New(WithLogger(discardLogger()))
		if a.Stage() != StageNew {
			t.Fatalf("Stage() = %v, want %v", a.Stage(), StageNew)
		}

		if err := a.LoadInventory([]model.Page{{URL: "https://site.example/a"}}, nil); err != nil {
			t.Fatalf("LoadInventory() returned error: %v", err)
		}
		if a.Stage() != StageInventoryLoaded {
			t.Errorf("Stage() = %v, want %v", a.Stage(), StageInventoryLoaded)
		}
		if err := a.LoadInventory(nil, nil); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("second LoadInventory() error = %v, want ErrInvalidStage", err)
		}

		if err := a.AttachIndex(nil); err != nil {
			t.Fatalf("AttachIndex() returned error: %v", err)
		}
		if a.Stage() != StageIndexed {
			t.Errorf("Stage() = %v, want %v", a.Stage(), StageIndexed)
		}

		if err := a.Extract(context.Background(), nil); err != nil {
			t.Fatalf("Extract() returned error: %v", err)
		}
		if a.Stage() != StageExtracted {
			t.Errorf("Stage() = %v, want %v", a.Stage(), StageExtracted)
		}

		if err := a.ReconcileDeletions(nil); err != nil {
			t.Fatalf("ReconcileDeletions() returned error: %v", err)
		}
		if a.Stage() != StageReconciled {
			t.Errorf("Stage() = %v, want %v", a.Stage(), StageReconciled)
		}

		set, err := a.Finalize()
		if err != nil {
			t.Fatalf("Finalize() returned error: %v", err)
		}
		if set == nil || set.Len() != 1 {
			t.Fatalf("Finalize() produced %v, want a one-record set", set)
		}
		if a.Stage() != StageComplete {
			t.Errorf("Stage() = %v, want %v", a.Stage(), StageComplete)
		}
		if _, err := a.Finalize(); !errors.Is(err, ErrInvalidStage) {
			t.Errorf("second Finalize() error = %v, want ErrInvalidStage", err)
		}
	})
}

func TestStageString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		stage Stage
		want  string
	}{
		{stage: StageNew, want: "new"},
		{stage: StageInventoryLoaded, want: "inventory-loaded"},
		{stage: StageIndexed, want: "indexed"},
		{stage: StageExtracted, want: "extracted"},
		{stage: StageReconciled, want: "deletions-reconciled"},
		{stage: StageComplete, want: "complete"},
		{stage: Stage(99), want: "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.stage.String(); got != tc.want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(tc.stage), got, tc.want)
		}
	}
}

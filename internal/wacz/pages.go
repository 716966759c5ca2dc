package wacz

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/harvester/internal/model"
)

// maxManifestLineBytes is the scanner buffer limit for one manifest
// line. Manifest rows can embed extracted page text, so the limit is
// generous.
const maxManifestLineBytes = 16 << 20 // 16 MB

// pageRow is the JSON shape of one page manifest line.
type pageRow struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	TS        string `json:"ts"`
	Status    int    `json:"status"`
	Seed      bool   `json:"seed"`
	LoadState int    `json:"loadState"` //nolint:tagliatelle // manifest field name
	Text      string `json:"text"`
}

// Pages reads the primary page manifest. A container without the
// primary manifest yields a wrapped ErrMemberNotFound; record assembly
// cannot proceed without it.
func (c *Container) Pages() ([]model.Page, error) {
	return c.readPages(PagesMember, true)
}

// ExtraPages reads the secondary page manifest. A container without
// one contributes no extra pages; that is not an error.
func (c *Container) ExtraPages() ([]model.Page, error) {
	return c.readPages(ExtraPagesMember, false)
}

// readPages parses one JSON-Lines page manifest member.
//
// The first line of a manifest is a file-header record describing the
// manifest itself, not a page; it is always skipped. Malformed lines
// are skipped with a warning. Crawler-generated sitemap pages are
// filtered out.
func (c *Container) readPages(member string, required bool) ([]model.Page, error) {
	rc, err := c.Member(member)
	if err != nil {
		if !required && errors.Is(err, ErrMemberNotFound) {
			c.logger.Debug("page manifest member absent", "member", member)
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only member

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxManifestLineBytes)

	var pages []model.Page
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 {
			// File-header record describing the manifest itself.
			continue
		}

		var row pageRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			c.logger.Warn("skipping malformed page manifest line",
				"member", member,
				"line", lineNo,
				"error", err)
			continue
		}
		if row.URL == "" {
			c.logger.Warn("skipping page manifest line without url",
				"member", member,
				"line", lineNo)
			continue
		}

		page := model.Page{
			ID:         row.ID,
			URL:        row.URL,
			Title:      row.Title,
			HTTPStatus: row.Status,
			Seed:       row.Seed,
			LoadState:  row.LoadState,
			Text:       row.Text,
		}
		if row.TS != "" {
			if ts, err := time.Parse(time.RFC3339, row.TS); err == nil {
				page.Timestamp = ts
			}
		}

		if page.IsSitemap() {
			c.logger.Debug("filtering crawler sitemap page", "url", page.URL)
			continue
		}
		pages = append(pages, page)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read page manifest %s: %w", member, err)
	}
	return pages, nil
}

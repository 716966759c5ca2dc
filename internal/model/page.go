package model

import (
	"strings"
	"time"
)

// Page represents a single row of a container's page manifest.
// Page manifests are JSON-Lines files produced by the crawler; each line
// after the file-header record describes one captured page.
type Page struct {
	// ID is the crawler-assigned page identifier.
	ID string `json:"id,omitempty"`

	// URL is the full URL of the captured page.
	URL string `json:"url"`

	// Title is the page title reported by the crawler.
	// Empty for non-HTML captures.
	Title string `json:"title,omitempty"`

	// Timestamp is the capture time reported by the manifest.
	// Zero when the manifest row carried no parseable time.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// HTTPStatus is the HTTP status code observed at capture time.
	// Zero when the manifest row carried none.
	HTTPStatus int `json:"http_status,omitempty"`

	// Seed is true when the page was a crawl seed rather than a
	// discovered link.
	Seed bool `json:"seed,omitempty"`

	// LoadState is the crawler's load-state code for the page.
	LoadState int `json:"load_state,omitempty"`

	// Text is the extracted page text when the manifest includes it.
	// Excluded from JSON output to keep record payloads small.
	Text string `json:"-"`
}

// IsSitemap reports whether the page is a crawler-generated sitemap
// navigation page. Such pages describe the crawl itself rather than the
// crawled site and are excluded from record assembly.
func (p *Page) IsSitemap() bool {
	return strings.HasSuffix(p.URL, "sitemap.html") || strings.HasSuffix(p.URL, "sitemap.xml")
}

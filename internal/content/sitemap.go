package content

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// sitemapDoc covers both sitemap document shapes: a <urlset> of page
// locations and a <sitemapindex> of nested sitemap locations.
type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// ParseSitemap extracts the location URLs from an XML sitemap. Both
// plain url sets and sitemap index documents are supported; the returned
// slice preserves document order with empty locations dropped.
func ParseSitemap(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc sitemapDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}

	locs := make([]string, 0, len(doc.URLs)+len(doc.Sitemaps))
	for _, u := range doc.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	for _, s := range doc.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

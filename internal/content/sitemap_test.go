package content

import (
	"strings"
	"testing"
)

func TestParseSitemap(t *testing.T) {
	t.Parallel()

	t.Run("parses a url set", func(t *testing.T) {
		t.Parallel()

		doc := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc><lastmod>2024-01-01</lastmod></url>
  <url><loc> https://example.com/about </loc></url>
  <url><loc></loc></url>
</urlset>`

		got, err := ParseSitemap(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("ParseSitemap() returned error: %v", err)
		}
		want := []string{"https://example.com/", "https://example.com/about"}
		if len(got) != len(want) {
			t.Fatalf("ParseSitemap() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ParseSitemap()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("parses a sitemap index", func(t *testing.T) {
		t.Parallel()

		doc := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-2.xml</loc></sitemap>
</sitemapindex>`

		got, err := ParseSitemap(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("ParseSitemap() returned error: %v", err)
		}
		if len(got) != 2 || got[0] != "https://example.com/sitemap-1.xml" {
			t.Errorf("ParseSitemap() = %v, want the two nested sitemap locations", got)
		}
	})

	t.Run("rejects malformed xml", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseSitemap(strings.NewReader("<urlset><url>")); err == nil {
			t.Error("ParseSitemap() = nil error, want parse failure")
		}
	})
}

func TestImageMetadata(t *testing.T) {
	t.Parallel()

	t.Run("rejects bytes without exif data", func(t *testing.T) {
		t.Parallel()

		if _, err := ImageMetadata([]byte("not an image")); err == nil {
			t.Error("ImageMetadata() = nil error, want scan failure")
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()

		if _, err := ImageMetadata(nil); err == nil {
			t.Error("ImageMetadata(nil) = nil error, want scan failure")
		}
	})
}

package model

import "testing"

// TestPageIsSitemap tests the IsSitemap method.
func TestPageIsSitemap(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		url      string
		expected bool
	}{
		{
			name:     "html sitemap page",
			url:      "https://example.org/sitemap.html",
			expected: true,
		},
		{
			name:     "xml sitemap page",
			url:      "https://example.org/sitemap.xml",
			expected: true,
		},
		{
			name:     "regular page",
			url:      "https://example.org/about",
			expected: false,
		},
		{
			name:     "sitemap in path but not suffix",
			url:      "https://example.org/sitemap.xml.bak",
			expected: false,
		},
		{
			name:     "empty url",
			url:      "",
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			page := &Page{URL: tc.url}
			if got := page.IsSitemap(); got != tc.expected {
				t.Errorf("IsSitemap(%q) = %v, expected %v", tc.url, got, tc.expected)
			}
		})
	}
}

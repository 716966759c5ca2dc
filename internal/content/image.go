package content

import (
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
)

// ImageMetadata extracts EXIF metadata from raw image bytes. The result
// maps tag names such as Make, Model, or GPSLatitude to their formatted
// values. Images without EXIF data return an error from the underlying
// scan; callers that only want to enrich output should treat that error
// as "no metadata" rather than a failure.
func ImageMetadata(data []byte) (map[string]string, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return nil, fmt.Errorf("search exif data: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("parse exif data: %w", err)
	}

	tags := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.TagName == "" || entry.Formatted == "" {
			continue
		}
		if _, ok := tags[entry.TagName]; ok {
			continue
		}
		tags[entry.TagName] = entry.Formatted
	}
	return tags, nil
}

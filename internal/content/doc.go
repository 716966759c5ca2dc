// Package content extracts structured data from captured payloads.
//
// The package turns raw HTML bodies into titles, whitespace-normalized
// full text, keyword lists, and rule-driven metadata fields, and offers
// helpers for the two non-HTML payload kinds the pipeline meets: EXIF
// metadata in images and URL lists in XML sitemaps.
//
// Extraction rules are data, not code: a Rules value maps output field
// names to element/attribute selectors, so callers add or rename fields
// through configuration without touching the parser.
package content

// Package log provides logging utilities for harvester.
// It wraps log/slog with a handler that caps oversized attribute
// values, so page text and payload snippets never flood the log.
package log

package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/harvester/internal/model"
)

// Writer defines the interface for record set output.
// Implementations write assembled record sets in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the record set to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(set *model.RecordSet) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write record sets, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the record set to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(set *model.RecordSet) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(set)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriterForPath returns the writer matching the path's extension.
// The caller owns the output destination; writers never open files
// themselves.
//
// Recognized extensions: .jsonl/.ndjson (JSON Lines), .csv, .tsv/.tab,
// .xml, and .md (Markdown).
func WriterForPath(path string, output io.Writer) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return NewJSONLWriter(output), nil
	case ".csv":
		return NewCSVWriter(output), nil
	case ".tsv", ".tab":
		return NewCSVWriter(output, WithDelimiter('\t')), nil
	case ".xml":
		return NewXMLWriter(output), nil
	case ".md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// baseWriter provides common functionality for record set writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// countingWriter tracks bytes written to the wrapped writer. Writers
// built on encoders that do not report byte counts use it to satisfy
// the Writer contract.
type countingWriter struct {
	w io.Writer
	n int
}

// Write forwards to the wrapped writer and accumulates the byte count.
func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// formatValue renders a column value as text. Unpopulated columns render
// as the empty string.
func formatValue(v any, ok bool) string {
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

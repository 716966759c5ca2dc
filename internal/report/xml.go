package report

import (
	"encoding/xml"
	"io"

	"github.com/nao1215/harvester/internal/model"
)

// XMLWriter outputs record sets as an indented XML document with one
// <record> element per record under a <records> root.
//
// Design decision: Elements are emitted through xml.Encoder tokens
// rather than struct marshaling because:
// 1. Rule-extracted column names are only known at runtime
// 2. Token emission keeps the element order equal to Columns()
// 3. The encoder escapes values and handles indentation for us
type XMLWriter struct {
	baseWriter
}

// NewXMLWriter creates an XMLWriter that outputs to the given writer.
func NewXMLWriter(output io.Writer) *XMLWriter {
	return &XMLWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the record set as a <records> document. Every record
// carries the full column superset; columns the record does not populate
// are empty elements.
func (w *XMLWriter) Write(set *model.RecordSet) (int, error) {
	counter := &countingWriter{w: w.output}

	if _, err := io.WriteString(counter, xml.Header); err != nil {
		return counter.n, err
	}

	enc := xml.NewEncoder(counter)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "records"}}
	if err := enc.EncodeToken(root); err != nil {
		return counter.n, err
	}

	columns := set.Columns()
	for _, rec := range set.Records() {
		if err := encodeRecord(enc, &rec, columns); err != nil {
			return counter.n, err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return counter.n, err
	}
	if err := enc.Close(); err != nil {
		return counter.n, err
	}

	// The encoder leaves no newline after the closing root tag.
	if _, err := io.WriteString(counter, "\n"); err != nil {
		return counter.n, err
	}

	return counter.n, nil
}

// encodeRecord emits one <record> element with one child element per
// column.
func encodeRecord(enc *xml.Encoder, rec *model.Record, columns []string) error {
	start := xml.StartElement{Name: xml.Name{Local: "record"}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	for _, c := range columns {
		el := xml.StartElement{Name: xml.Name{Local: c}}
		if err := enc.EncodeElement(formatValue(rec.Value(c)), el); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/harvester/internal/model"
)

// JSONLWriter outputs record sets as JSON Lines: one JSON object per
// record, one record per line.
// This format is designed for tool integration and streaming processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because:
// 1. It's part of the standard library (no extra dependencies)
// 2. Marshaling a map yields sorted keys, so output is deterministic
// 3. It provides consistent behavior across Go versions
type JSONLWriter struct {
	baseWriter
}

// NewJSONLWriter creates a JSONLWriter that outputs to the given writer.
func NewJSONLWriter(output io.Writer) *JSONLWriter {
	return &JSONLWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs every record as one JSON object per line. Each object
// carries the set's full column superset, with null for columns the
// record does not populate.
func (w *JSONLWriter) Write(set *model.RecordSet) (int, error) {
	columns := set.Columns()

	var total int
	for _, rec := range set.Records() {
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			if v, ok := rec.Value(c); ok {
				row[c] = v
			} else {
				row[c] = nil
			}
		}

		data, err := json.Marshal(row)
		if err != nil {
			return total, err
		}
		data = append(data, '\n')

		n, err := w.output.Write(data)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

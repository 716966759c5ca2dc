package report

import (
	"io"
	"strconv"

	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// markdownColumns are the columns shown in the record table. The wide
// content columns stay out so the table remains readable.
var markdownColumns = []string{"url", "title", "timestamp", "status", "mime", "http_status", "segment"}

// MarkdownWriter outputs record sets in Markdown format.
// This format is designed for human review and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the record set in Markdown format.
func (w *MarkdownWriter) Write(set *model.RecordSet) (int, error) {
	counter := &countingWriter{w: w.output}
	md := markdown.NewMarkdown(counter)

	w.writeHeader(md, set)
	w.writeStatusChart(md, set)
	w.writeRecords(md, set)
	w.writeFooter(md)

	err := md.Build()
	return counter.n, err
}

// writeHeader writes the report title and the set summary table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, set *model.RecordSet) {
	md.H1("Harvest Records")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Total Records", strconv.Itoa(set.Len())},
			{"Active", strconv.Itoa(set.Active())},
			{"Deleted", strconv.Itoa(set.Deleted())},
			{"Columns", strconv.Itoa(len(set.Columns()))},
		},
	})
	md.PlainText("")
}

// writeStatusChart writes a mermaid pie chart of active versus deleted
// records, plus an alert when deletions were detected.
func (w *MarkdownWriter) writeStatusChart(md *markdown.Markdown, set *model.RecordSet) {
	if set.Len() == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Record Status Distribution"),
		piechart.WithShowData(true),
	)

	if set.Active() > 0 {
		chart.LabelAndIntValue("Active", uint64(set.Active()))
	}
	if set.Deleted() > 0 {
		chart.LabelAndIntValue("Deleted", uint64(set.Deleted()))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	if set.Deleted() > 0 {
		md.Warningf(
			"%d URL(s) from the prior inventory are no longer present in this harvest.",
			set.Deleted(),
		)
		md.PlainText("")
	}
}

// writeRecords writes the record table.
func (w *MarkdownWriter) writeRecords(md *markdown.Markdown, set *model.RecordSet) {
	md.H2("Records")
	md.PlainText("")

	if set.Len() == 0 {
		md.PlainText("No records assembled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, set.Len())
	for _, rec := range set.Records() {
		row := make([]string, len(markdownColumns))
		for i, c := range markdownColumns {
			value := formatValue(rec.Value(c))
			if value == "" {
				value = "-"
			}
			row[i] = value
		}
		row[0] = truncateString(row[0], 60)
		row[1] = truncateString(row[1], 40)
		rows = append(rows, row)
	}

	md.Table(markdown.TableSet{
		Header: markdownColumns,
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [harvester](https://github.com/nao1215/harvester)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// Package report provides record set output in multiple formats.
//
// This package contains writers for different output formats:
//   - JSONLWriter: JSON Lines output for tool integration
//   - CSVWriter: CSV or TSV output for spreadsheet workflows
//   - XMLWriter: XML output for legacy consumers
//   - MarkdownWriter: Markdown tables for human review
//
// Design decision: We separate record writing from the record data
// structures (which are in the model package) to follow the single
// responsibility principle. This allows adding new output formats
// without modifying the core data structures.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report

// Package main provides the entry point for the harvester CLI.
//
// Harvester ingests web-crawl container artifacts (WACZ files) and
// assembles one structured record per captured page: content metadata,
// keywords, index details, and deletion reconciliation against prior
// harvests.
//
// Usage:
//
//	harvester harvest <archive.wacz>
//	harvester records <archive.wacz>
//
// See --help for all available options.
package main

// main is the entry point for harvester.
func main() {
	Execute()
}

// Package crawl invokes an external crawler to produce a container
// artifact for ingestion.
//
// This package never crawls anything itself. The crawler (by default
// browsertrix-crawler) is an opaque external command: crawl builds its
// argument vector, runs it, streams its output to the logger, and
// verifies that the expected container artifact exists afterwards.
//
// Design decision: We shell out to an external crawler instead of
// fetching pages in-process because browser-grade capture (JS
// rendering, service workers, exact WARC layout) is a product of its
// own. Keeping the boundary at "produce a container artifact" means any
// crawler that writes the standard layout works here.
//
// The package is designed to be used with dependency injection - create
// a Runner and pass it to components that need crawling rather than
// using global state.
package crawl

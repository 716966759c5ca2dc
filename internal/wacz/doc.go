// Package wacz reads crawl container artifacts.
//
// A container artifact is a ZIP with a fixed layout: capture segments
// under archive/, a content index under indexes/, and page manifests
// under pages/. Open validates the layout up front and fails fast when
// it is absent, so every other operation can assume a well-formed
// container.
//
// The package exposes the three read paths record assembly needs:
// page manifests (Pages, ExtraPages), the content index (Index), and
// byte-addressed capture extraction (SegmentReaderAt, ExtractByURL).
package wacz

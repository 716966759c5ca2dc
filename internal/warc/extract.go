package warc

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Capture is one extracted HTTP response capture: the decoded payload
// of a single record inside a capture segment.
type Capture struct {
	// TargetURL is the captured URL from the record header.
	TargetURL string

	// StatusCode is the HTTP status code of the captured response.
	StatusCode int

	// Header contains the captured response headers. Framing headers
	// (Transfer-Encoding, and Content-Encoding/Content-Length when the
	// body was decoded) are removed because Body is fully decoded.
	Header http.Header

	// Body is the captured response payload with chunked framing
	// removed and gzip/deflate content encoding decoded. Payloads with
	// an unrecognized content encoding are returned as captured.
	Body []byte

	// RawLength is the compressed record length inside the segment.
	RawLength int64
}

// ContentType returns the captured Content-Type header without
// parameters, lowercased. Empty when the capture carried none.
func (c *Capture) ContentType() string {
	ct := c.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsHTML reports whether the capture is an HTML page.
func (c *Capture) IsHTML() bool {
	ct := c.ContentType()
	return ct == "text/html" || ct == "application/xhtml+xml"
}

// IsImage reports whether the capture is an image.
func (c *Capture) IsImage() bool {
	return strings.HasPrefix(c.ContentType(), "image/")
}

// Extract reads the capture at the given byte range of a segment and
// returns its decoded HTTP response. The range must address exactly one
// independently-compressed record member, as recorded by the content
// index: Extract reads length bytes at offset, decompresses that single
// member, and parses the record inside it.
func Extract(ra io.ReaderAt, offset, length int64) (*Capture, error) {
	if offset < 0 || length <= 0 {
		return nil, fmt.Errorf("%w: offset %d, length %d", ErrInvalidRange, offset, length)
	}

	buf := make([]byte, length)
	if _, err := ra.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read segment range at offset %d: %w", offset, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: open member at offset %d: %v", ErrMalformedRecord, offset, err)
	}
	defer gz.Close() //nolint:errcheck // read-only stream
	gz.Multistream(false) // the range addresses exactly one member

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress member at offset %d: %v", ErrMalformedRecord, offset, err)
	}

	capture, err := parseRecord(raw)
	if err != nil {
		return nil, err
	}
	capture.RawLength = length
	return capture, nil
}

// parseRecord parses one decompressed record: the record header block,
// then the embedded HTTP response.
func parseRecord(raw []byte) (*Capture, error) {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))

	version, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: read version line: %v", ErrMalformedRecord, err)
	}
	if !strings.HasPrefix(version, "WARC/") {
		return nil, fmt.Errorf("%w: unexpected version line %q", ErrMalformedRecord, version)
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: read record header: %v", ErrMalformedRecord, err)
	}

	if recType := header.Get("WARC-Type"); recType != "" && recType != "response" {
		return nil, fmt.Errorf("%w: record type %q", ErrNotResponse, recType)
	}

	payload, err := recordPayload(tp.R, header.Get("Content-Length"))
	if err != nil {
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(payload)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parse embedded response: %v", ErrMalformedRecord, err)
	}
	defer resp.Body.Close() //nolint:errcheck // in-memory body

	// ReadResponse removes chunked framing while reading the body.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrMalformedRecord, err)
	}

	capture := &Capture{
		TargetURL:  header.Get("WARC-Target-URI"),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	capture.Header.Del("Transfer-Encoding")

	capture.Body = body
	if decoded, ok := decodeBody(body, resp.Header.Get("Content-Encoding")); ok {
		capture.Body = decoded
		capture.Header.Del("Content-Encoding")
		capture.Header.Del("Content-Length")
	}
	return capture, nil
}

// recordPayload reads the record's payload block. The record header's
// Content-Length governs the block; records without a parseable length
// yield everything that remains.
func recordPayload(br *bufio.Reader, contentLength string) ([]byte, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
	if err != nil || n < 0 {
		return io.ReadAll(br)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, fmt.Errorf("%w: payload shorter than declared length %d: %v", ErrMalformedRecord, n, err)
	}
	return payload, nil
}

// decodeBody decodes a gzip or deflate content encoding. The second
// return value is false when the body was left untouched.
func decodeBody(body []byte, encoding string) ([]byte, bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false
		}
		defer gz.Close() //nolint:errcheck // read-only stream
		decoded, err := io.ReadAll(gz)
		if err != nil {
			return nil, false
		}
		return decoded, true
	case "deflate":
		// Servers send both zlib-wrapped and raw deflate streams.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close() //nolint:errcheck // read-only stream
			if decoded, err := io.ReadAll(zr); err == nil {
				return decoded, true
			}
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close() //nolint:errcheck // read-only stream
		decoded, err := io.ReadAll(fr)
		if err != nil {
			return nil, false
		}
		return decoded, true
	default:
		return nil, false
	}
}

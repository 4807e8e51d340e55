package lanserve

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/badu/lanserve/formdata"
	"github.com/badu/lanserve/header"
)

// noRangeOffset is the sentinel spec.md §4.5 describes for ByteRange:
// "offset == SENTINEL && length > 0 => suffix of that many bytes".
const noRangeOffset = -1

// ByteRange is the RFC 7233 single-range selection spec.md §3 and §4.5
// describe: either {Offset >= 0, Length >= 0} or {Offset absent (suffix),
// Length > 0}.
type ByteRange struct {
	Offset int64 // noRangeOffset when this is a suffix range
	Length int64
}

// IsSuffix reports whether r selects the last r.Length bytes of the
// resource rather than an absolute offset.
func (r ByteRange) IsSuffix() bool { return r.Offset == noRangeOffset }

// Request is spec.md §3's immutable-after-construction value: headers,
// URL, query, path and the derived conditional/range/encoding fields are
// all fixed once the connection finishes READ_HEADERS. Only the body
// sink (owned by whichever RequestFactory the matched handler used)
// changes state as READ_BODY proceeds.
type Request struct {
	Method          string
	URL             *url.URL
	Header          header.Header
	Path            string
	Query           url.Values
	ContentType     string // "" means absent; "application/octet-stream" is assumed by callers when a body is present without one
	ContentLength   int64  // -1 means no parsable Content-Length header (e.g. a chunked body, or no body at all)
	ByteRange       *ByteRange
	IfModifiedSince time.Time
	IfNoneMatch     string
	AcceptsGzip     bool

	body       bodyWriter
	bodyOpened bool
	bodyErr    error

	// discarded marks a Request constructed solely to test whether a path
	// matches some other method (see pathExistsForOtherMethod); its body
	// writer, if any, must never be driven.
	discarded bool

	// hijack is set by the connection FSM just before Process runs,
	// giving protocols that don't fit the request/response model (the
	// WebSocket upgrade in lanserve/wsock) a way to take over the raw
	// socket. Nil for requests constructed outside a live connection.
	hijack func() (net.Conn, *bufio.Reader, *bufio.Writer)
}

func (r *Request) discard() { r.discarded = true }

// Hijack takes exclusive ownership of the underlying TCP connection and
// its buffered reader/writer away from the connection FSM. A handler
// that hijacks must return HijackedResponse() from its ProcessFunc; the
// FSM then writes nothing more, but it still closes the socket once the
// ProcessFunc has returned, so the handler can use the socket only until
// then (spec.md §4.6: the WebSocket upgrade completes the handshake "in
// place of a normal Response").
func (r *Request) Hijack() (conn net.Conn, br *bufio.Reader, bw *bufio.Writer, ok bool) {
	if r.hijack == nil {
		return nil, nil, nil, false
	}
	conn, br, bw = r.hijack()
	return conn, br, bw, true
}

// NewMemoryRequest is the default RequestFactory: it accumulates the
// body to an in-memory buffer with an optional cap. Handlers that want a
// temp-file, urlencoded-form or multipart sink construct the
// corresponding Request variant instead (spec.md §4.4).
func NewMemoryRequest(maxBytes int64) RequestFactory {
	return func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request {
		req := newRequest(method, u, h, path, query)
		req.body = &memoryBodyWriter{maxBytes: maxBytes}
		return req
	}
}

// NewTempFileRequest accumulates the body to a temp file under dir
// (empty uses os.TempDir).
func NewTempFileRequest(dir string) RequestFactory {
	return func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request {
		req := newRequest(method, u, h, path, query)
		req.body = &tempFileBodyWriter{dir: dir}
		return req
	}
}

// NewURLEncodedFormRequest parses the body as
// application/x-www-form-urlencoded on close.
func NewURLEncodedFormRequest(maxBytes int64) RequestFactory {
	return func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request {
		req := newRequest(method, u, h, path, query)
		req.body = &formdata.URLEncodedWriter{MaxBytes: maxBytes}
		return req
	}
}

// NewMultipartFormRequest parses the body as a multipart/form-data
// stream; it returns nil (no match) if the Content-Type isn't a valid
// multipart form, so it composes directly with the MatchFunc builders.
func NewMultipartFormRequest(maxMemory int64, tempDir string) RequestFactory {
	return func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request {
		w, err := formdata.NewMultipartWriter(h.Get(header.ContentType), maxMemory, tempDir)
		if err != nil {
			return nil
		}
		req := newRequest(method, u, h, path, query)
		req.body = w
		return req
	}
}

func newRequest(method string, u *url.URL, h header.Header, path string, query url.Values) *Request {
	r := &Request{
		Method:        strings.ToUpper(method),
		URL:           u,
		Header:        h,
		Path:          path,
		Query:         query,
		ContentLength: -1,
	}
	r.ContentType = h.Get(header.ContentType)
	if cl := h.Get(header.ContentLength); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			r.ContentLength = n
		}
	}
	r.ByteRange = parseByteRange(h.Get(header.Range))
	if ims := h.Get(header.IfModifiedSince); ims != "" {
		if t, err := header.ParseTime(ims); err == nil {
			r.IfModifiedSince = t
		}
	}
	r.IfNoneMatch = h.Get(header.IfNoneMatch)
	r.AcceptsGzip = acceptsGzip(h.Get(header.AcceptEncoding))
	return r
}

// HasBody reports whether the request declares a body, per spec.md
// §4.2's READ_BODY trigger: "Content-Length > 0, or Transfer-Encoding:
// chunked".
func (r *Request) HasBody() bool {
	if strings.EqualFold(r.Header.Get(header.TransferEncoding), "chunked") {
		return true
	}
	return r.ContentLength > 0
}

// parseByteRange parses a single-range "Range: bytes=a-b" or
// "Range: bytes=-N" header per spec.md §4.5. An absent or malformed
// header (including any multi-range request, which this server doesn't
// support) yields a nil range.
func parseByteRange(v string) *ByteRange {
	const prefix = "bytes="
	if v == "" || !strings.HasPrefix(v, prefix) {
		return nil
	}
	spec := v[len(prefix):]
	if strings.Contains(spec, ",") {
		return nil // multi-range unsupported
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil
	}
	startStr, endStr := spec[:dash], spec[dash+1:]
	if startStr == "" {
		// suffix range: "-500"
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil
		}
		return &ByteRange{Offset: noRangeOffset, Length: n}
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil
	}
	if endStr == "" {
		// open-ended: "500-" -> length resolved against resource size later
		return &ByteRange{Offset: start, Length: -1}
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil
	}
	return &ByteRange{Offset: start, Length: end - start + 1}
}

// acceptsGzip reports whether Accept-Encoding lists gzip with a nonzero
// q value (spec.md §4.5).
func acceptsGzip(v string) bool {
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		fields := strings.Split(part, ";")
		name := strings.TrimSpace(fields[0])
		if !strings.EqualFold(name, "gzip") {
			continue
		}
		q := 1.0
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if strings.HasPrefix(f, "q=") {
				if parsed, err := strconv.ParseFloat(strings.TrimPrefix(f, "q="), 64); err == nil {
					q = parsed
				}
			}
		}
		if q > 0 {
			return true
		}
	}
	return false
}

// resolve clamps r against a resource of the given total length,
// returning the concrete [offset, offset+length) window and whether it
// is satisfiable at all (spec.md §4.2: "respond 416 if the range is
// wholly outside the resource").
func (r ByteRange) resolve(total int64) (offset, length int64, ok bool) {
	switch {
	case r.IsSuffix():
		if r.Length >= total {
			return 0, total, true
		}
		return total - r.Length, r.Length, true
	case r.Length < 0:
		if r.Offset >= total {
			return 0, 0, false
		}
		return r.Offset, total - r.Offset, true
	default:
		if r.Offset >= total {
			return 0, 0, false
		}
		end := r.Offset + r.Length
		if end > total {
			end = total
		}
		return r.Offset, end - r.Offset, true
	}
}

func (r ByteRange) contentRangeHeader(total int64) string {
	offset, length, _ := r.resolve(total)
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total)
}

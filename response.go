package lanserve

import (
	"encoding/json"
	"os"
	"time"

	"github.com/badu/lanserve/header"
	"github.com/badu/lanserve/mimetype"
)

// Response is spec.md §3's mutable-until-first-body-read value. A nil
// ContentType means no body at all (emptyBody).
type Response struct {
	ContentType               string
	ContentLength             int64 // -1 = unknown -> forces chunked
	StatusCode                int
	CacheControlMaxAge        int // default 0 => "no-cache"
	LastModified              time.Time
	ETag                      string
	GzipContentEncodingEnabled bool
	AdditionalHeaders         header.Header

	reader      bodyReader
	filePath    string // set by NewFileResponse, used for range re-Open
	fileSize    int64
	attachment  bool
	attachName  string

	// hijacked marks a Response produced after the handler already took
	// ownership of the socket via Request.Hijack (spec.md §4.6); the
	// connection FSM writes nothing further and does not keep the
	// connection alive for another request.
	hijacked bool
}

// HijackedResponse tells the connection FSM that the handler already
// took over the raw socket (via Request.Hijack) and wrote its own
// bytes directly; the FSM must not attempt to write a response or
// continue serving further requests on this connection.
func HijackedResponse() *Response {
	r := newResponseBase()
	r.hijacked = true
	return r
}

// chunked reports whether the wire must use Transfer-Encoding: chunked,
// per spec.md §3's invariant "contentLength == unknown <=> chunked on
// the wire".
func (resp *Response) chunked() bool { return resp.ContentLength < 0 }

func newResponseBase() *Response {
	return &Response{
		StatusCode:    200,
		ContentLength: -1,
		AdditionalHeaders: header.New(),
	}
}

// NewResponse returns an empty 200 response with no body. An empty body
// has a known length of zero, so it is framed with Content-Length: 0,
// never Transfer-Encoding: chunked (RFC 7230 §3.3.1, RFC 7232 §4.1's
// "304 MUST NOT carry a message body").
func NewResponse() *Response {
	r := newResponseBase()
	r.ContentLength = 0
	r.reader = emptyBody{}
	return r
}

// NewResponseWithStatus returns an empty response with the given status
// and no body (used for 304, 401, redirects before Location is set,
// etc.).
func NewResponseWithStatus(code int) *Response {
	r := NewResponse()
	r.StatusCode = code
	return r
}

// NewRedirectResponse returns a 301 (permanent) or 302 (temporary)
// redirect to target.
func NewRedirectResponse(target string, permanent bool) *Response {
	r := NewResponseWithStatus(302)
	if permanent {
		r.StatusCode = 301
	}
	r.AdditionalHeaders.Set(header.Location, target)
	return r
}

// NewDataResponse serves data in one shot with the given content type.
func NewDataResponse(data []byte, contentType string) *Response {
	r := newResponseBase()
	r.ContentType = contentType
	r.ContentLength = int64(len(data))
	r.reader = &dataBody{data: data}
	return r
}

// NewTextResponse is a convenience over NewDataResponse for text/plain.
func NewTextResponse(s string) *Response {
	return NewDataResponse([]byte(s), "text/plain; charset=utf-8")
}

// NewHTMLResponse is a convenience over NewDataResponse for text/html.
func NewHTMLResponse(s string) *Response {
	return NewDataResponse([]byte(s), "text/html; charset=utf-8")
}

// NewJSONResponse marshals v and serves it as application/json. A
// marshal error is folded into a 500 response with a plain-text body,
// matching spec.md §4.2's "If process returns null, synthesize a 500
// response" treatment of handler failures.
func NewJSONResponse(v interface{}) *Response {
	b, err := json.Marshal(v)
	if err != nil {
		r := NewDataResponse([]byte(err.Error()), "text/plain; charset=utf-8")
		r.StatusCode = 500
		return r
	}
	return NewDataResponse(b, "application/json")
}

// FileResponseOptions configures NewFileResponse.
type FileResponseOptions struct {
	ContentType    string // empty -> resolved via mimetype.ByExtension
	AllowByteRange bool
	Attachment     bool
	AttachmentName string
}

// NewFileResponse serves a file from disk. The connection FSM's
// applyRange step honors a Range request against every file-backed
// Response (calling SliceForRange); opts.AllowByteRange is not consulted,
// and neither are opts.Attachment and opts.AttachmentName.
func NewFileResponse(path string, opts FileResponseOptions) (*Response, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	r := newResponseBase()
	r.filePath = path
	r.fileSize = fi.Size()
	r.ContentLength = fi.Size()
	r.LastModified = fi.ModTime()
	r.ContentType = opts.ContentType
	if r.ContentType == "" {
		r.ContentType = mimetype.ByExtension(path)
	}
	r.attachment = opts.Attachment
	r.attachName = opts.AttachmentName
	r.reader = &fileBody{path: path, offset: 0, length: fi.Size()}
	return r, nil
}

// SliceForRange re-targets a file-backed Response at [offset, offset+length)
// and marks it 206, called by the connection FSM after resolving a
// Range header against the file's total size.
func (resp *Response) SliceForRange(offset, length int64) {
	resp.reader = &fileBody{path: resp.filePath, offset: offset, length: length}
	resp.ContentLength = length
	resp.StatusCode = 206
}

// IsFileBacked reports whether this Response wraps an on-disk file (the
// only body kind spec.md §4.2 allows range requests against).
func (resp *Response) IsFileBacked() bool { return resp.filePath != "" }

// FileSize returns the full resource size for a file-backed Response.
func (resp *Response) FileSize() int64 { return resp.fileSize }

// NewStreamResponse serves a body produced on demand by fn, forcing
// chunked transfer encoding since the total length is unknown.
func NewStreamResponse(contentType string, fn StreamFunc) *Response {
	r := newResponseBase()
	r.ContentType = contentType
	r.ContentLength = -1
	r.reader = &streamBody{fn: fn}
	return r
}

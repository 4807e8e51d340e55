package lanserve

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/badu/lanserve/header"
	"github.com/badu/lanserve/logsink"
)

const maxHeaderBytes = 64 << 10 // spec.md §4.2's recommended cap

// Connection owns one accepted socket exclusively (spec.md §3). It is
// destroyed when the socket closes and never outlives its Server.
type Connection struct {
	srv     *Server
	id      uint64
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	bytesRead    int64
	bytesWritten int64
}

// newConnection is the default Connection constructor; Options.NewConnection
// overrides it (spec.md §9: "ConnectionClass ... hook point for subclasses").
func newConnection(srv *Server, nc net.Conn) *Connection {
	return &Connection{
		srv:     srv,
		netConn: nc,
		br:      bufio.NewReader(nc),
		bw:      bufio.NewWriter(nc),
	}
}

// serve drives the connection FSM through keep-alive request after
// request until the client disconnects, a fatal error occurs, or the
// handler opts out of keep-alive (spec.md §4.2).
func (c *Connection) serve() {
	defer func() {
		if r := recover(); r != nil && r != ErrAbortHandler {
			c.srv.log(logsink.Error, "connection %d: panic: %v", c.id, r)
		}
		c.netConn.Close()
	}()

	for {
		keepAlive, err := c.serveOne()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.srv.log(logsink.Debug, "connection %d: %v", c.id, err)
			}
			return
		}
		if !keepAlive {
			return
		}
	}
}

// serveOne runs READ_REQUEST_LINE through WRITE_BODY once. A returned
// error means the connection should close without attempting to write
// anything further (the socket is presumed dead or the client hung up
// between requests, which is the normal end of a keep-alive sequence).
func (c *Connection) serveOne() (keepAlive bool, err error) {
	if c.srv.opts.ReadHeaderTimeout > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(c.srv.opts.ReadHeaderTimeout))
	}

	method, target, proto, lineErr := c.readRequestLine()
	if lineErr != nil {
		if errors.Is(lineErr, io.EOF) {
			return false, io.EOF
		}
		c.writeStatusOnly(statusFor(lineErr))
		return false, nil
	}

	hdrs, hdrErr := c.readHeaders()
	if hdrErr != nil {
		c.writeStatusOnly(statusFor(hdrErr))
		return false, nil
	}
	c.netConn.SetReadDeadline(time.Time{})

	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		c.writeStatusOnly(505)
		return false, nil
	}
	httpOneZero := proto == "HTTP/1.0"

	u, path, query, urlErr := buildRequestURL(target, hdrs)
	if urlErr != nil {
		c.writeStatusOnly(400)
		return false, nil
	}

	if resp := c.srv.checkAuth(method, target, hdrs); resp != nil {
		keepAlive := !closeRequested(hdrs, httpOneZero)
		c.writeResponse(resp, method, httpOneZero, keepAlive)
		return keepAlive, nil
	}

	result := c.srv.matchHandler(method, u, hdrs, path, query)
	if result.request == nil && strings.EqualFold(method, "HEAD") && !c.srv.opts.DisableHEADToGET {
		if got := c.srv.matchHandler("GET", u, hdrs, path, query); got.request != nil {
			result = got
		}
	}
	if result.request == nil {
		status := 404
		if c.srv.pathExistsForOtherMethod(u, hdrs, path, query) {
			status = 405
		}
		if !validMethod(method) && status == 404 {
			status = 501
		}
		keepAlive := !closeRequested(hdrs, httpOneZero)
		c.writeResponse(NewResponseWithStatus(status), method, httpOneZero, keepAlive)
		return keepAlive, nil
	}

	req := result.request
	req.hijack = func() (net.Conn, *bufio.Reader, *bufio.Writer) {
		return c.netConn, c.br, c.bw
	}
	defer req.releaseBody()

	if bodyErr := c.readBody(req, hdrs); bodyErr != nil {
		// spec.md §3 invariant: on writer-close failure the connection is
		// aborted without invoking the handler's process function.
		c.writeStatusOnly(statusFor(bodyErr))
		return false, nil
	}

	resp := result.process(req)
	if resp == nil {
		resp = NewResponseWithStatus(500)
	}
	if resp.hijacked {
		// The handler already owns the socket directly (e.g. a WebSocket
		// upgrade); nothing more to write, and this connection is done.
		return false, nil
	}

	resp = applyConditional(req, resp)
	if rangedResp, rangeErr := applyRange(req, resp); rangeErr != nil {
		keepAlive := !closeRequested(hdrs, httpOneZero)
		c.writeStatusOnly(416)
		return keepAlive, nil
	} else {
		resp = rangedResp
	}

	keepAlive := !closeRequested(hdrs, httpOneZero) && resp.StatusCode < 500
	if writeErr := c.writeResponse(resp, method, httpOneZero, keepAlive); writeErr != nil {
		return false, writeErr
	}

	return keepAlive, nil
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH":
		return true
	default:
		return false
	}
}

// readRequestLine parses "METHOD SP request-target SP HTTP/1.1 CRLF".
func (c *Connection) readRequestLine() (method, target, proto string, err error) {
	line, err := c.readLimitedLine()
	if err != nil {
		return "", "", "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	return strings.ToUpper(parts[0]), parts[1], strings.TrimSpace(parts[2]), nil
}

// readHeaders accumulates header lines until the blank line, rejecting
// folded continuations (forbidden by RFC 7230) and an oversized header
// block.
func (c *Connection) readHeaders() (header.Header, error) {
	h := header.New()
	var total int
	for {
		line, err := c.readLimitedLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		total += len(line)
		if total > maxHeaderBytes {
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", ErrMalformedHeaders, maxHeaderBytes)
		}
		if line[0] == ' ' || line[0] == '\t' {
			// RFC 7230 §3.2.4: obsolete line folding is forbidden.
			return nil, fmt.Errorf("%w: obsolete line folding", ErrMalformedHeaders)
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeaders, line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

// readLimitedLine reads one CRLF- or LF-terminated line, stripping the
// terminator, bounded by maxHeaderBytes to guard against an unbounded
// line keeping the connection open forever.
func (c *Connection) readLimitedLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	c.bytesRead += int64(len(line))
	if len(line) > maxHeaderBytes {
		return "", fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedHeaders, maxHeaderBytes)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// buildRequestURL reconstructs an absolute URL from the Host header and
// request-target, per spec.md §3: "URL (absolute, reconstructed from
// Host header + request-target)". The Host header is validated with the
// same rules net/http itself enforces, rejecting control characters and
// other malformed values before they end up in a synthesized URL.
func buildRequestURL(target string, h header.Header) (*url.URL, string, url.Values, error) {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		// Some clients send an origin-form target without a leading slash
		// guard; url.Parse is more lenient.
		u, err = url.Parse(target)
		if err != nil {
			return nil, "", nil, err
		}
	}
	host := h.Get(header.Host)
	if host != "" && !httpguts.ValidHostHeader(host) {
		return nil, "", nil, fmt.Errorf("%w: invalid Host header", ErrMalformedHeaders)
	}
	u.Scheme = "http"
	u.Host = host
	path := u.Path
	if path == "" {
		path = "/"
	}
	query, _ := url.ParseQuery(u.RawQuery)
	return u, path, query, nil
}

func closeRequested(h header.Header, httpOneZero bool) bool {
	conn := strings.ToLower(h.Get(header.Connection))
	if httpOneZero {
		return !strings.Contains(conn, "keep-alive")
	}
	return strings.Contains(conn, "close")
}

// readBody drives the matched Request's bodyWriter through its
// open/write.../close cycle, decoding chunked transfer encoding on the
// wire first when present (spec.md §4.2).
func (c *Connection) readBody(req *Request, h header.Header) error {
	if req.body == nil || req.discarded {
		return nil
	}
	if !req.HasBody() {
		return nil
	}
	if err := req.body.Open(); err != nil {
		return req.body.Close(err)
	}
	req.bodyOpened = true

	maxBody := c.srv.opts.MaxRequestBodyBytes
	var readErr error
	var total int64
	write := func(p []byte) error {
		total += int64(len(p))
		if maxBody > 0 && total > maxBody {
			return WithStatus(413, ErrPayloadTooLarge)
		}
		return req.body.Write(p)
	}

	if strings.EqualFold(h.Get(header.TransferEncoding), "chunked") {
		_, readErr = newChunkedReader(c.br).decodeInto(write)
	} else {
		remaining := req.ContentLength
		buf := make([]byte, readChunkSize)
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			read, err := io.ReadFull(c.br, buf[:n])
			c.bytesRead += int64(read)
			if read > 0 {
				if werr := write(buf[:read]); werr != nil {
					readErr = werr
					break
				}
			}
			if err != nil {
				readErr = err
				break
			}
			remaining -= int64(read)
		}
	}

	if err := req.body.Close(readErr); err != nil {
		return WithStatus(statusFor(err), ErrBodyWriterFailure)
	}
	return nil
}

// writeResponse implements WRITE_HEADERS + WRITE_BODY: status line, then
// headers in spec.md §4.2's fixed order, then the body (suppressed for
// HEAD, wrapped in chunked framing when resp.chunked()). keepAlive
// controls the Connection header this response advertises; callers that
// already decided to close the connection for another reason (a parse
// error, a 5xx, an explicit Connection: close) must pass false.
func (c *Connection) writeResponse(resp *Response, method string, httpOneZero, keepAlive bool) error {
	suppressBody := strings.EqualFold(method, "HEAD")

	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", resp.StatusCode, statusText(resp.StatusCode))
	if httpOneZero {
		statusLine = fmt.Sprintf("HTTP/1.0 %d %s\r\n", resp.StatusCode, statusText(resp.StatusCode))
	}
	if _, err := c.bw.WriteString(statusLine); err != nil {
		return err
	}

	useChunked := resp.chunked() && !httpOneZero && !suppressBody
	if err := c.writeHeaderBlock(resp, useChunked, keepAlive); err != nil {
		return err
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return err
	}

	if !suppressBody {
		if err := c.streamBody(resp, useChunked); err != nil {
			return err
		}
	} else if err := resp.reader.Close(); err != nil {
		return err
	}
	return c.bw.Flush()
}

// writeHeaderBlock emits Content-Type, Content-Length/Transfer-Encoding,
// Connection, Server, Date, Cache-Control, Last-Modified, ETag,
// Content-Encoding, Content-Range, then all additional headers, per
// spec.md §4.2's fixed ordering (needed for the determinism invariant
// in spec.md §8).
func (c *Connection) writeHeaderBlock(resp *Response, useChunked, keepAlive bool) error {
	w := c.bw
	write := func(k, v string) error {
		_, err := fmt.Fprintf(w, "%s: %s\r\n", k, v)
		return err
	}
	if resp.ContentType != "" {
		if err := write(header.ContentType, resp.ContentType); err != nil {
			return err
		}
	}
	switch {
	case useChunked:
		if err := write(header.TransferEncoding, "chunked"); err != nil {
			return err
		}
	default:
		length := resp.ContentLength
		if length < 0 {
			length = 0
		}
		if err := write(header.ContentLength, strconv.FormatInt(length, 10)); err != nil {
			return err
		}
	}
	connVal := "close"
	if keepAlive {
		connVal = "keep-alive"
	}
	if err := write(header.Connection, connVal); err != nil {
		return err
	}
	if c.srv.opts.ServerName != "" {
		if err := write(header.Server, c.srv.opts.ServerName); err != nil {
			return err
		}
	}
	if err := write(header.Date, time.Now().UTC().Format(header.TimeFormat)); err != nil {
		return err
	}
	cacheControl := "no-cache"
	if resp.CacheControlMaxAge > 0 {
		cacheControl = fmt.Sprintf("max-age=%d", resp.CacheControlMaxAge)
	}
	if err := write(header.CacheControl, cacheControl); err != nil {
		return err
	}
	if !resp.LastModified.IsZero() {
		if err := write(header.LastModified, resp.LastModified.UTC().Format(header.TimeFormat)); err != nil {
			return err
		}
	}
	if resp.ETag != "" {
		if err := write(header.ETag, resp.ETag); err != nil {
			return err
		}
	}
	if resp.GzipContentEncodingEnabled {
		if err := write(header.ContentEncoding, "gzip"); err != nil {
			return err
		}
	}
	if cr := resp.AdditionalHeaders.Get(header.ContentRange); cr != "" {
		if err := write(header.ContentRange, cr); err != nil {
			return err
		}
	}
	if resp.AdditionalHeaders != nil {
		var buf bytes.Buffer
		exclude := map[string]bool{
			header.ContentType: true, header.ContentLength: true, header.TransferEncoding: true,
			header.Connection: true, header.Server: true, header.Date: true,
			header.CacheControl: true, header.LastModified: true, header.ETag: true,
			header.ContentEncoding: true, header.ContentRange: true,
		}
		if err := resp.AdditionalHeaders.WriteSubset(&buf, exclude); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) streamBody(resp *Response, useChunked bool) error {
	if err := resp.reader.Open(); err != nil {
		return err
	}
	defer resp.reader.Close()

	if useChunked {
		cw := newChunkedWriter(c.bw)
		for {
			data, err := resp.reader.ReadData()
			if err != nil {
				return err
			}
			if data == nil {
				break
			}
			if _, err := cw.Write(data); err != nil {
				return err
			}
		}
		return cw.Close()
	}

	for {
		data, err := resp.reader.ReadData()
		if err != nil {
			return err
		}
		if data == nil {
			return nil
		}
		if _, err := c.bw.Write(data); err != nil {
			return err
		}
	}
}

// writeStatusOnly emits a bare status-line response with no body, used
// for the error paths spec.md §7 describes (translated before any
// response byte has been sent).
func (c *Connection) writeStatusOnly(code int) {
	resp := NewResponseWithStatus(code)
	resp.ContentType = "text/plain; charset=utf-8"
	resp.reader = &dataBody{data: []byte(statusText(code))}
	resp.ContentLength = int64(len(statusText(code)))
	c.writeResponse(resp, "GET", false, false)
}

var statusTexts = map[int]string{
	200: "OK", 206: "Partial Content", 301: "Moved Permanently", 302: "Found",
	304: "Not Modified", 400: "Bad Request", 401: "Unauthorized", 404: "Not Found",
	405: "Method Not Allowed", 411: "Length Required", 413: "Payload Too Large",
	416: "Range Not Satisfiable", 500: "Internal Server Error", 501: "Not Implemented",
	505: "HTTP Version Not Supported",
}

func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return "Unknown"
}

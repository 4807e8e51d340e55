package lanserve

import (
	"bytes"
	"os"
)

// bodyWriter is the request body sink contract from spec.md §4.4:
// "open() -> ok|err; write(bytes) -> ok|err; close()". spec.md §3's
// invariant governs every implementation: "observes exactly one open ->
// zero or more write -> one close cycle; close may signal success or
// failure."
type bodyWriter interface {
	Open() error
	Write(p []byte) error
	Close(err error) error
}

// memoryBodyWriter accumulates the body in memory, optionally capped.
type memoryBodyWriter struct {
	maxBytes int64 // 0 = unbounded
	buf      bytes.Buffer
}

func (w *memoryBodyWriter) Open() error {
	w.buf.Reset()
	return nil
}

func (w *memoryBodyWriter) Write(p []byte) error {
	if w.maxBytes > 0 && int64(w.buf.Len()+len(p)) > w.maxBytes {
		return WithStatus(413, ErrPayloadTooLarge)
	}
	_, err := w.buf.Write(p)
	return err
}

func (w *memoryBodyWriter) Close(err error) error { return err }

// Bytes returns the accumulated body. Valid after a successful Close.
func (w *memoryBodyWriter) Bytes() []byte { return w.buf.Bytes() }

// tempFileBodyWriter spills the body straight to disk.
type tempFileBodyWriter struct {
	dir  string
	file *os.File
	path string
}

func (w *tempFileBodyWriter) Open() error {
	f, err := os.CreateTemp(w.dir, "lanserve-body-")
	if err != nil {
		return err
	}
	w.file = f
	w.path = f.Name()
	return nil
}

func (w *tempFileBodyWriter) Write(p []byte) error {
	_, err := w.file.Write(p)
	return err
}

func (w *tempFileBodyWriter) Close(err error) error {
	cerr := w.file.Close()
	if err != nil {
		os.Remove(w.path)
		return err
	}
	return cerr
}

// Path returns the temp file's path. Valid after a successful Close;
// the Request owning this writer is responsible for removing it when
// destroyed (spec.md §5 "Resource scoping").
func (w *tempFileBodyWriter) Path() string { return w.path }

// Body returns the accumulated request body for handlers that used the
// default in-memory RequestFactory, or nil otherwise.
func (r *Request) Body() []byte {
	if mw, ok := r.body.(*memoryBodyWriter); ok {
		return mw.Bytes()
	}
	return nil
}

// BodyFilePath returns the temp file path for handlers that used
// NewTempFileRequest, or "" otherwise.
func (r *Request) BodyFilePath() string {
	if fw, ok := r.body.(*tempFileBodyWriter); ok {
		return fw.Path()
	}
	return ""
}

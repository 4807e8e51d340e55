package lanserve

import (
	"io"
	"os"
)

// bodyReader is the response body source contract from spec.md §4.4:
// "open() -> ok|err, readData() -> bytes|empty(=eof)|err, close()". It
// is single-shot and sequential (spec.md §3 invariant: "a Response's
// body is read at most once, sequentially from offset 0").
type bodyReader interface {
	Open() error
	ReadData() ([]byte, error) // nil, nil means EOF
	Close() error
}

const readChunkSize = 32 * 1024

// emptyBody is used by Response values with no body at all (ContentType
// == "" per spec.md §3).
type emptyBody struct{}

func (emptyBody) Open() error                  { return nil }
func (emptyBody) ReadData() ([]byte, error)     { return nil, nil }
func (emptyBody) Close() error                  { return nil }

// dataBody serves a fixed in-memory buffer in one chunk, then EOF.
type dataBody struct {
	data []byte
	sent bool
}

func (b *dataBody) Open() error { b.sent = false; return nil }
func (b *dataBody) ReadData() ([]byte, error) {
	if b.sent {
		return nil, nil
	}
	b.sent = true
	return b.data, nil
}
func (b *dataBody) Close() error { return nil }

// fileBody streams a byte range of an on-disk file (possibly the whole
// file when offset==0 and length==size).
type fileBody struct {
	path   string
	offset int64
	length int64

	f    *os.File
	sr   *io.SectionReader
	done bool
}

func (b *fileBody) Open() error {
	f, err := os.Open(b.path)
	if err != nil {
		return err
	}
	b.f = f
	b.sr = io.NewSectionReader(f, b.offset, b.length)
	b.done = false
	return nil
}

func (b *fileBody) ReadData() ([]byte, error) {
	if b.done {
		return nil, nil
	}
	buf := make([]byte, readChunkSize)
	n, err := b.sr.Read(buf)
	if n > 0 {
		if err == io.EOF {
			b.done = true
		} else if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
	if err == io.EOF || err == nil {
		b.done = true
		return nil, nil
	}
	return nil, err
}

func (b *fileBody) Close() error {
	if b.f == nil {
		return nil
	}
	return b.f.Close()
}

// StreamFunc is a user-supplied body producer (spec.md §4.4: "stream
// (calls a user-supplied closure; forces chunked encoding)"). It returns
// the next chunk of bytes, or nil, nil at end of stream.
type StreamFunc func() ([]byte, error)

// streamBody wraps a StreamFunc; its mere presence forces chunked
// transfer encoding since the total length is never known up front.
type streamBody struct {
	fn StreamFunc
}

func (b *streamBody) Open() error                { return nil }
func (b *streamBody) ReadData() ([]byte, error)   { return b.fn() }
func (b *streamBody) Close() error                { return nil }

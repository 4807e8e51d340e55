// Package formdata implements the two request-body writer variants
// spec.md §4.4 calls for beyond plain memory/temp-file accumulation:
// application/x-www-form-urlencoded parsing and a streaming
// multipart/form-data state machine. Both are grounded on the teacher's
// own mime/multipart fork (_examples/badu-http/mime), adapted from its
// pull-based io.Reader contract to the spec's push-based Write([]byte)
// contract, since bytes arrive off the connection's socket as the FSM
// reads them rather than being pulled on demand.
package formdata

import (
	"io"
	"os"

	"github.com/badu/lanserve/header"
)

// Form is a parsed multipart/form-data body (URLEncodedWriter yields
// url.Values instead): ordinary
// fields keyed by name with last-write-wins-free multi-value slices, and
// uploaded files keyed by field name.
type Form struct {
	Value map[string][]string
	File  map[string][]*FileHeader
}

// FileHeader describes one uploaded file part.
type FileHeader struct {
	Filename string
	Header   header.Header
	Size     int64

	content []byte // set when small enough to keep in memory
	tmpfile string // set when spilled to disk
}

// Open returns a reader over the file part's content.
func (fh *FileHeader) Open() (io.ReadCloser, error) {
	if fh.content != nil {
		return io.NopCloser(newBytesReader(fh.content)), nil
	}
	return os.Open(fh.tmpfile)
}

// RemoveAll deletes any temp files backing f's file parts. Called when
// the owning Request is destroyed, per spec.md §5 "Resource scoping".
func (f *Form) RemoveAll() error {
	var first error
	for _, fhs := range f.File {
		for _, fh := range fhs {
			if fh.tmpfile != "" {
				if err := os.Remove(fh.tmpfile); err != nil && first == nil {
					first = err
				}
			}
		}
	}
	return first
}

func newBytesReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

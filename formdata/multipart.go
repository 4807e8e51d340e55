package formdata

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"

	"github.com/badu/lanserve/header"
)

// multipart parser states, matching spec.md §4.4's state machine.
type mpState int

const (
	mpBoundary mpState = iota // expecting a "--boundary" delimiter line
	mpHeaders                 // accumulating one part's header lines
	mpBody                    // streaming one part's body bytes
	mpDone
)

// MultipartWriter is the streaming request body writer for
// multipart/form-data (spec.md §4.4). Bytes are handed to it as they
// arrive off the wire via Write; it is safe against a boundary being
// split across two Write calls because it always retains at least
// boundaryLookback bytes of unconsumed input before scanning again.
type MultipartWriter struct {
	// MaxMemory is the per-part size above which a file part spills to a
	// temp file under TempDir; smaller file parts stay in memory. Non-file
	// field values are always kept in memory, with no cap.
	MaxMemory int64
	TempDir   string

	boundary   string
	dash       []byte // "--" + boundary
	dashDash   []byte // "--" + boundary + "--"
	state      mpState
	partsSeen  int
	pending    []byte // lookback buffer
	headerBuf  bytes.Buffer
	curName    string
	curFile    string
	curHeader  header.Header
	curDest    io.Writer
	curMemBuf  *bytes.Buffer
	curTmpFile *os.File
	curSize    int64
	form       *Form
	memUsed    int64
}

// boundary length + 4 is the minimum lookback spec.md §4.4 requires
// ("safe against split boundaries ... buffers at least boundary_len+4
// bytes of lookback").
func (w *MultipartWriter) lookback() int { return len(w.dashDash) + 4 }

// NewMultipartWriter extracts the boundary from a Content-Type header
// value (e.g. "multipart/form-data; boundary=X") and constructs a ready
// writer, or an error if the header isn't a valid multipart Content-Type.
func NewMultipartWriter(contentType string, maxMemory int64, tempDir string) (*MultipartWriter, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("formdata: invalid Content-Type: %w", err)
	}
	if mediaType != "multipart/form-data" {
		return nil, fmt.Errorf("formdata: not multipart/form-data: %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("formdata: missing boundary parameter")
	}
	return &MultipartWriter{
		MaxMemory: maxMemory,
		TempDir:   tempDir,
		boundary:  boundary,
		dash:      []byte("--" + boundary),
		dashDash:  []byte("--" + boundary + "--"),
	}, nil
}

// Open prepares the writer for a new body.
func (w *MultipartWriter) Open() error {
	w.state = mpBoundary
	w.partsSeen = 0
	w.pending = nil
	w.form = &Form{Value: map[string][]string{}, File: map[string][]*FileHeader{}}
	return nil
}

// Write feeds the next chunk of wire bytes into the state machine.
func (w *MultipartWriter) Write(p []byte) error {
	if w.state == mpDone {
		return nil // trailing epilogue bytes after the final boundary are ignored
	}
	w.pending = append(w.pending, p...)
	for {
		progressed, err := w.step()
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// step consumes as much of w.pending as can be safely interpreted,
// returning progressed=false when it needs more bytes to make forward
// progress.
func (w *MultipartWriter) step() (bool, error) {
	switch w.state {
	case mpBoundary:
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			return false, nil
		}
		line := w.pending[:idx+1]
		w.pending = w.pending[idx+1:]
		trimmed := bytes.TrimRight(line, "\r\n")
		switch {
		case bytes.Equal(trimmed, w.dashDash):
			w.state = mpDone
			return true, nil
		case bytes.Equal(trimmed, w.dash):
			w.partsSeen++
			w.headerBuf.Reset()
			w.state = mpHeaders
			return true, nil
		case w.partsSeen == 0:
			// preamble line before the first boundary; RFC 2046 allows and
			// ignores it.
			return true, nil
		default:
			return false, fmt.Errorf("formdata: expected boundary, got %q", string(line))
		}

	case mpHeaders:
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			return false, nil
		}
		line := w.pending[:idx+1]
		w.pending = w.pending[idx+1:]
		if isBlankLine(line) {
			if err := w.openPart(); err != nil {
				return false, err
			}
			w.state = mpBody
			return true, nil
		}
		w.headerBuf.Write(line)
		return true, nil

	case mpBody:
		delim := append([]byte("\r\n"), w.dash...)
		idx := bytes.Index(w.pending, delim)
		if idx < 0 {
			// No boundary in view yet: flush everything except enough
			// trailing bytes to still recognize a split delimiter next time.
			safe := len(w.pending) - w.lookback()
			if safe <= 0 {
				return false, nil
			}
			if err := w.writeBody(w.pending[:safe]); err != nil {
				return false, err
			}
			w.pending = w.pending[safe:]
			return false, nil
		}
		// Need enough bytes after the delimiter to know if it's the final
		// boundary ("--") or a fresh part (bare CRLF).
		if len(w.pending) < idx+len(delim)+2 {
			return false, nil
		}
		if err := w.writeBody(w.pending[:idx]); err != nil {
			return false, err
		}
		if err := w.closePart(); err != nil {
			return false, err
		}
		rest := w.pending[idx+len(delim):]
		if len(rest) >= 2 && rest[0] == '-' && rest[1] == '-' {
			w.pending = rest[2:]
			w.state = mpDone
			return true, nil
		}
		// Skip to end of this boundary line (optional whitespace + CRLF).
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return false, nil
		}
		w.pending = rest[nl+1:]
		w.partsSeen++
		w.headerBuf.Reset()
		w.state = mpHeaders
		return true, nil

	default:
		return false, nil
	}
}

func isBlankLine(line []byte) bool {
	t := bytes.TrimRight(line, "\r\n")
	return len(t) == 0
}

func (w *MultipartWriter) openPart() error {
	h, err := parsePartHeader(w.headerBuf.Bytes())
	if err != nil {
		return err
	}
	w.curHeader = h
	_, params, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	w.curName = params["name"]
	w.curFile = params["filename"]
	w.curSize = 0
	if w.curFile == "" {
		w.curMemBuf = &bytes.Buffer{}
		w.curDest = w.curMemBuf
		w.curTmpFile = nil
		return nil
	}
	// File parts go straight to memory until MaxMemory is exceeded, then
	// spill to a temp file (mirrors the teacher's ReadForm budget split).
	w.curMemBuf = &bytes.Buffer{}
	w.curDest = w.curMemBuf
	w.curTmpFile = nil
	return nil
}

func (w *MultipartWriter) writeBody(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if w.curFile != "" && w.curTmpFile == nil && int64(w.curMemBuf.Len()+len(p)) > w.MaxMemory {
		f, err := os.CreateTemp(w.TempDir, "lanserve-upload-")
		if err != nil {
			return err
		}
		if _, err := f.Write(w.curMemBuf.Bytes()); err != nil {
			f.Close()
			os.Remove(f.Name())
			return err
		}
		w.curTmpFile = f
		w.curDest = f
		w.curMemBuf = nil
	}
	n, err := w.curDest.Write(p)
	w.curSize += int64(n)
	return err
}

func (w *MultipartWriter) closePart() error {
	defer func() { w.curDest = nil }()
	if w.curName == "" && w.curFile == "" {
		return nil
	}
	if w.curFile == "" {
		w.form.Value[w.curName] = append(w.form.Value[w.curName], w.curMemBuf.String())
		return nil
	}
	fh := &FileHeader{Filename: w.curFile, Header: w.curHeader, Size: w.curSize}
	if w.curTmpFile != nil {
		fh.tmpfile = w.curTmpFile.Name()
		if err := w.curTmpFile.Close(); err != nil {
			return err
		}
	} else {
		fh.content = w.curMemBuf.Bytes()
	}
	w.form.File[w.curName] = append(w.form.File[w.curName], fh)
	return nil
}

// Close finalizes the parse. A non-nil err (upstream write failure)
// aborts without requiring a well-formed trailing boundary; any
// in-progress temp file is removed.
func (w *MultipartWriter) Close(err error) error {
	if err != nil {
		if w.curTmpFile != nil {
			w.curTmpFile.Close()
			os.Remove(w.curTmpFile.Name())
		}
		return err
	}
	if w.state != mpDone {
		return fmt.Errorf("formdata: truncated multipart body")
	}
	return nil
}

// Form returns the parsed form. Valid only after a successful Close.
func (w *MultipartWriter) Form() *Form { return w.form }

func parsePartHeader(raw []byte) (header.Header, error) {
	h := header.New()
	lines := bytes.Split(raw, []byte("\r\n"))
	for _, line := range lines {
		line = bytes.TrimRight(line, "\n")
		if len(line) == 0 {
			continue
		}
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("formdata: malformed part header %q", string(line))
		}
		key := string(bytes.TrimSpace(line[:idx]))
		val := string(bytes.TrimSpace(line[idx+1:]))
		h.Add(key, val)
	}
	return h, nil
}

package formdata

import (
	"io"
	"strings"
	"testing"
)

const testBoundary = "XXBoundary"

func buildMultipartBody(boundary string) string {
	var b strings.Builder
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Disposition: form-data; name=\"title\"\r\n\r\n")
	b.WriteString("hello world\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\n")
	b.WriteString("Content-Type: text/plain\r\n\r\n")
	b.WriteString("file contents here\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func newTestWriter(t *testing.T) *MultipartWriter {
	t.Helper()
	w, err := NewMultipartWriter("multipart/form-data; boundary="+testBoundary, 1<<20, t.TempDir())
	if err != nil {
		t.Fatalf("NewMultipartWriter: %v", err)
	}
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return w
}

func TestMultipartWriterParsesFieldAndFile(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Write([]byte(buildMultipartBody(testBoundary))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	form := w.Form()
	if got := form.Value["title"]; len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("title = %v, want [hello world]", got)
	}
	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("expected one file part, got %d", len(files))
	}
	if files[0].Filename != "a.txt" {
		t.Fatalf("Filename = %q, want a.txt", files[0].Filename)
	}
	rc, err := files[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(content) != "file contents here" {
		t.Fatalf("content = %q, want %q", content, "file contents here")
	}
}

func TestMultipartWriterSurvivesSplitAcrossWrites(t *testing.T) {
	w := newTestWriter(t)
	raw := []byte(buildMultipartBody(testBoundary))
	// Feed it one byte at a time to exercise the boundary-lookback logic.
	for _, b := range raw {
		if err := w.Write([]byte{b}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	form := w.Form()
	if got := form.Value["title"]; len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("title = %v, want [hello world]", got)
	}
	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("expected one file part, got %d", len(files))
	}
}

func TestMultipartWriterSpillsToTempFileBeyondMaxMemory(t *testing.T) {
	w, err := NewMultipartWriter("multipart/form-data; boundary="+testBoundary, 4, t.TempDir())
	if err != nil {
		t.Fatalf("NewMultipartWriter: %v", err)
	}
	if err := w.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Write([]byte(buildMultipartBody(testBoundary))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files := w.Form().File["file"]
	if len(files) != 1 {
		t.Fatalf("expected one file part, got %d", len(files))
	}
	if files[0].tmpfile == "" {
		t.Fatal("expected the file part to spill to a temp file with MaxMemory=4")
	}
	rc, err := files[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(content) != "file contents here" {
		t.Fatalf("content = %q, want %q", content, "file contents here")
	}
}

func TestMultipartWriterRejectsTruncatedBody(t *testing.T) {
	w := newTestWriter(t)
	body := buildMultipartBody(testBoundary)
	truncated := body[:len(body)-20]
	if err := w.Write([]byte(truncated)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(nil); err == nil {
		t.Fatal("expected Close to report a truncated body")
	}
}

func TestNewMultipartWriterRejectsNonMultipart(t *testing.T) {
	if _, err := NewMultipartWriter("application/json", 0, ""); err == nil {
		t.Fatal("expected an error for a non-multipart Content-Type")
	}
}

func TestNewMultipartWriterRejectsMissingBoundary(t *testing.T) {
	if _, err := NewMultipartWriter("multipart/form-data", 0, ""); err == nil {
		t.Fatal("expected an error for a missing boundary parameter")
	}
}

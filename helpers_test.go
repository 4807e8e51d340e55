package lanserve

import (
	"os"
	"regexp"
	"testing"
)

// writeTempFile writes contents to a temp file and registers its removal
// with t.Cleanup, returning the path.
func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	f, err := os.CreateTemp("", "lanserve-test-")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })
	if _, err := f.WriteString(contents); err != nil {
		f.Close()
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

// readAllBody drains a Response's body reader to completion.
func readAllBody(t *testing.T, resp *Response) []byte {
	t.Helper()
	if err := resp.reader.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer resp.reader.Close()
	var out []byte
	for {
		chunk, err := resp.reader.ReadData()
		if err != nil {
			t.Fatalf("ReadData: %v", err)
		}
		if chunk == nil {
			return out
		}
		out = append(out, chunk...)
	}
}

func mustRegex(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatalf("regexp.Compile(%q): %v", pattern, err)
	}
	return re
}

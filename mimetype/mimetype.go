// Package mimetype resolves a file extension to a Content-Type value for
// the file-serving handler builders. Per spec.md §1 this lookup is "a
// pure function, uninteresting" and explicitly out of the core's scope,
// so it defers to the standard library's extension table and only adds
// the handful of entries that table lacks.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

var extra = map[string]string{
	".md":    "text/markdown; charset=utf-8",
	".webp":  "image/webp",
	".woff2": "font/woff2",
	".wasm":  "application/wasm",
}

// ByExtension returns the Content-Type for path's extension, falling back
// to "application/octet-stream" when nothing matches.
func ByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if ct, ok := extra[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

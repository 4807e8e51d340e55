package mimetype

import "testing"

func TestByExtensionKnownTypes(t *testing.T) {
	cases := map[string]string{
		"index.html": "text/html; charset=utf-8",
		"notes.md":   "text/markdown; charset=utf-8",
		"photo.webp": "image/webp",
		"app.wasm":   "application/wasm",
	}
	for path, want := range cases {
		if got := ByExtension(path); got != want {
			t.Errorf("ByExtension(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestByExtensionUnknownFallsBackToOctetStream(t *testing.T) {
	if got := ByExtension("data.xyz123"); got != "application/octet-stream" {
		t.Fatalf("ByExtension = %q, want application/octet-stream", got)
	}
}

func TestByExtensionIsCaseInsensitive(t *testing.T) {
	if got := ByExtension("PHOTO.WEBP"); got != "image/webp" {
		t.Fatalf("ByExtension = %q, want image/webp", got)
	}
}

package lanserve

import (
	"testing"
	"time"
)

func TestApplyConditionalETagMatch(t *testing.T) {
	req := &Request{IfNoneMatch: `"abc"`}
	resp := NewResponseWithStatus(200)
	resp.ETag = `"abc"`

	got := applyConditional(req, resp)
	if got.StatusCode != 304 {
		t.Fatalf("StatusCode = %d, want 304", got.StatusCode)
	}
	if got.ETag != resp.ETag {
		t.Fatalf("ETag = %q, want %q", got.ETag, resp.ETag)
	}
	if got.ContentLength != 0 {
		t.Fatalf("ContentLength = %d, want 0 (RFC 7232 §4.1: 304 MUST NOT carry a message body)", got.ContentLength)
	}
	if got.chunked() {
		t.Fatal("a 304 response must never report chunked()")
	}
}

func TestApplyConditionalETagWildcard(t *testing.T) {
	req := &Request{IfNoneMatch: "*"}
	resp := NewResponseWithStatus(200)
	resp.ETag = `"whatever"`

	got := applyConditional(req, resp)
	if got.StatusCode != 304 {
		t.Fatalf("StatusCode = %d, want 304", got.StatusCode)
	}
}

func TestApplyConditionalETagMismatchPassesThrough(t *testing.T) {
	req := &Request{IfNoneMatch: `"other"`}
	resp := NewResponseWithStatus(200)
	resp.ETag = `"abc"`

	got := applyConditional(req, resp)
	if got.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", got.StatusCode)
	}
}

func TestApplyConditionalLastModified(t *testing.T) {
	modTime := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	resp := NewResponseWithStatus(200)
	resp.LastModified = modTime

	// Client's cached copy is as new or newer than the resource.
	req := &Request{IfModifiedSince: modTime}
	if got := applyConditional(req, resp); got.StatusCode != 304 {
		t.Fatalf("StatusCode = %d, want 304", got.StatusCode)
	}

	// Client's cached copy predates the resource: full response.
	req2 := &Request{IfModifiedSince: modTime.Add(-time.Hour)}
	resp2 := NewResponseWithStatus(200)
	resp2.LastModified = modTime
	if got := applyConditional(req2, resp2); got.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", got.StatusCode)
	}
}

func TestApplyConditionalNoConditionalHeaders(t *testing.T) {
	resp := NewResponseWithStatus(200)
	got := applyConditional(&Request{}, resp)
	if got.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", got.StatusCode)
	}
}

func TestByteRangeResolveAbsolute(t *testing.T) {
	r := ByteRange{Offset: 10, Length: 20}
	offset, length, ok := r.resolve(100)
	if !ok || offset != 10 || length != 20 {
		t.Fatalf("resolve = %d, %d, %v, want 10, 20, true", offset, length, ok)
	}
}

func TestByteRangeResolveClampsToTotal(t *testing.T) {
	r := ByteRange{Offset: 90, Length: 50}
	offset, length, ok := r.resolve(100)
	if !ok || offset != 90 || length != 10 {
		t.Fatalf("resolve = %d, %d, %v, want 90, 10, true", offset, length, ok)
	}
}

func TestByteRangeResolveSuffix(t *testing.T) {
	r := ByteRange{Offset: noRangeOffset, Length: 10}
	offset, length, ok := r.resolve(100)
	if !ok || offset != 90 || length != 10 {
		t.Fatalf("resolve = %d, %d, %v, want 90, 10, true", offset, length, ok)
	}
}

func TestByteRangeResolveSuffixLargerThanTotal(t *testing.T) {
	r := ByteRange{Offset: noRangeOffset, Length: 500}
	offset, length, ok := r.resolve(100)
	if !ok || offset != 0 || length != 100 {
		t.Fatalf("resolve = %d, %d, %v, want 0, 100, true", offset, length, ok)
	}
}

func TestByteRangeResolveOutsideResourceUnsatisfiable(t *testing.T) {
	r := ByteRange{Offset: 200, Length: 10}
	_, _, ok := r.resolve(100)
	if ok {
		t.Fatal("expected resolve to report unsatisfiable")
	}
}

func TestByteRangeResolveOpenEnded(t *testing.T) {
	r := ByteRange{Offset: 50, Length: -1}
	offset, length, ok := r.resolve(100)
	if !ok || offset != 50 || length != 50 {
		t.Fatalf("resolve = %d, %d, %v, want 50, 50, true", offset, length, ok)
	}
}

func TestApplyRangeNonFileBackedPassesThrough(t *testing.T) {
	req := &Request{ByteRange: &ByteRange{Offset: 0, Length: 10}}
	resp := NewDataResponse([]byte("hello world"), "text/plain")
	got, err := applyRange(req, resp)
	if err != nil {
		t.Fatalf("applyRange: %v", err)
	}
	if got != resp {
		t.Fatal("expected the same response back for a non-file-backed body")
	}
}

func TestApplyRangeUnsatisfiable(t *testing.T) {
	resp, err := NewFileResponse(writeTempFile(t, "hello"), FileResponseOptions{AllowByteRange: true})
	if err != nil {
		t.Fatalf("NewFileResponse: %v", err)
	}
	req := &Request{ByteRange: &ByteRange{Offset: 100, Length: 10}}
	_, rangeErr := applyRange(req, resp)
	if rangeErr == nil {
		t.Fatal("expected a 416 error for an out-of-bounds range")
	}
}

func TestApplyRangeSatisfiable(t *testing.T) {
	resp, err := NewFileResponse(writeTempFile(t, "hello world"), FileResponseOptions{AllowByteRange: true})
	if err != nil {
		t.Fatalf("NewFileResponse: %v", err)
	}
	req := &Request{ByteRange: &ByteRange{Offset: 0, Length: 5}}
	got, rangeErr := applyRange(req, resp)
	if rangeErr != nil {
		t.Fatalf("applyRange: %v", rangeErr)
	}
	if got.StatusCode != 206 {
		t.Fatalf("StatusCode = %d, want 206", got.StatusCode)
	}
	if got.ContentLength != 5 {
		t.Fatalf("ContentLength = %d, want 5", got.ContentLength)
	}
	if got.AdditionalHeaders.Get("Content-Range") != "bytes 0-4/11" {
		t.Fatalf("Content-Range = %q, want %q", got.AdditionalHeaders.Get("Content-Range"), "bytes 0-4/11")
	}
}

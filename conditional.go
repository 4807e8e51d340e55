package lanserve

import "strings"

// applyConditional implements spec.md §4.2's PROCESS -> APPLY_CONDITIONAL
// transform: "maps to 304 Not Modified when If-Modified-Since >=
// lastModifiedDate or when If-None-Match matches eTag (... the special
// value * matches any existing ETag)". It returns resp unchanged when no
// conditional header applies or matches.
func applyConditional(req *Request, resp *Response) *Response {
	if resp.ETag != "" && req.IfNoneMatch != "" {
		if req.IfNoneMatch == "*" || matchesETag(req.IfNoneMatch, resp.ETag) {
			return notModified(resp)
		}
		return resp
	}
	if !resp.LastModified.IsZero() && !req.IfModifiedSince.IsZero() {
		if !req.IfModifiedSince.Before(resp.LastModified) {
			return notModified(resp)
		}
	}
	return resp
}

func matchesETag(ifNoneMatch, etag string) bool {
	return strings.TrimSpace(ifNoneMatch) == strings.TrimSpace(etag)
}

func notModified(original *Response) *Response {
	resp := NewResponseWithStatus(304)
	resp.ETag = original.ETag
	resp.LastModified = original.LastModified
	resp.CacheControlMaxAge = original.CacheControlMaxAge
	return resp
}

// applyRange implements spec.md §4.2's APPLY_BYTE_RANGE transform for a
// file-backed Response: clamp to [0, length), serve 206 with
// Content-Range, or signal 416 when the range is wholly outside the
// resource.
func applyRange(req *Request, resp *Response) (out *Response, rangeErr error) {
	if req.ByteRange == nil || !resp.IsFileBacked() {
		return resp, nil
	}
	offset, length, ok := req.ByteRange.resolve(resp.FileSize())
	if !ok {
		return resp, WithStatus(416, ErrRangeNotSatisfiable)
	}
	contentRange := req.ByteRange.contentRangeHeader(resp.FileSize())
	resp.SliceForRange(offset, length)
	resp.AdditionalHeaders.Set("Content-Range", contentRange)
	return resp, nil
}

// Package header implements a case-insensitive HTTP header map, the way
// net/http's textproto.MIMEHeader does, trimmed to what an embeddable
// HTTP/1.1 server needs: canonicalization, last-write-wins Set, ordered
// wire serialization.
package header

import (
	"io"
	"sort"
	"strings"
	"time"
)

// Well-known header names, pre-canonicalized so callers never mistype them.
const (
	Accept            = "Accept"
	AcceptEncoding    = "Accept-Encoding"
	AcceptRanges      = "Accept-Ranges"
	Authorization     = "Authorization"
	CacheControl      = "Cache-Control"
	Connection        = "Connection"
	ContentEncoding   = "Content-Encoding"
	ContentLength     = "Content-Length"
	ContentRange      = "Content-Range"
	ContentType       = "Content-Type"
	Date              = "Date"
	ETag              = "ETag"
	Host              = "Host"
	IfModifiedSince   = "If-Modified-Since"
	IfNoneMatch       = "If-None-Match"
	LastModified      = "Last-Modified"
	Location          = "Location"
	Range             = "Range"
	Server            = "Server"
	TransferEncoding  = "Transfer-Encoding"
	Upgrade           = "Upgrade"
	WWWAuthenticate   = "WWW-Authenticate"
	SecWebSocketKey   = "Sec-WebSocket-Key"
	SecWebSocketAccept = "Sec-WebSocket-Accept"
	SecWebSocketVersion = "Sec-WebSocket-Version"

	// TimeFormat is IMF-fixdate, the format RFC 7231 §7.1.1.1 requires for
	// Date, Last-Modified and similar headers.
	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var timeFormats = []string{TimeFormat, time.RFC850, time.ANSIC}

// Header is a case-insensitive mapping of header names to their values,
// keyed on the canonical (title-cased) form of the name.
type Header map[string][]string

// New returns an empty Header.
func New() Header { return make(Header) }

// Add appends value under key, canonicalizing key first.
func (h Header) Add(key, value string) {
	h[CanonicalKey(key)] = append(h[CanonicalKey(key)], value)
}

// Set replaces any existing values for key with value (last-write-wins,
// per spec.md's Request.Header contract).
func (h Header) Set(key, value string) {
	h[CanonicalKey(key)] = []string{value}
}

// Get returns the first value for key, or "" if absent.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns all values for key, or nil if absent.
func (h Header) Values(key string) []string {
	if h == nil {
		return nil
	}
	return h[CanonicalKey(key)]
}

// Del removes all values for key.
func (h Header) Del(key string) {
	delete(h, CanonicalKey(key))
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// WriteSubset writes the header in wire format, skipping any key present
// in exclude, and sorted by key so output is deterministic across runs
// (spec.md §8 invariant 1: byte-identical responses modulo Date).
func (h Header) WriteSubset(w io.Writer, exclude map[string]bool) error {
	kvs, sorter := h.sortedKeyValues(exclude)
	defer putHeaderSorter(sorter)
	var err error
	for _, kv := range kvs {
		for _, v := range kv.values {
			v = headerNewlineToSpace.Replace(v)
			v = strings.TrimSpace(v)
			for _, s := range []string{kv.key, ": ", v, "\r\n"} {
				if _, err = io.WriteString(w, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

var headerNewlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

type keyValues struct {
	key    string
	values []string
}

type headerSorter struct{ kvs []keyValues }

func (s *headerSorter) Len() int           { return len(s.kvs) }
func (s *headerSorter) Swap(i, j int)      { s.kvs[i], s.kvs[j] = s.kvs[j], s.kvs[i] }
func (s *headerSorter) Less(i, j int) bool { return s.kvs[i].key < s.kvs[j].key }

func (h Header) sortedKeyValues(exclude map[string]bool) ([]keyValues, *headerSorter) {
	hs := &headerSorter{kvs: make([]keyValues, 0, len(h))}
	for k, vv := range h {
		if !exclude[k] {
			hs.kvs = append(hs.kvs, keyValues{k, vv})
		}
	}
	sort.Sort(hs)
	return hs.kvs, hs
}

func putHeaderSorter(hs *headerSorter) { hs.kvs = hs.kvs[:0] }

// ParseTime parses an HTTP-date header value, trying the three formats
// RFC 7231 §7.1.1.1 requires a recipient to accept.
func ParseTime(text string) (time.Time, error) {
	var err error
	for _, layout := range timeFormats {
		var t time.Time
		if t, err = time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

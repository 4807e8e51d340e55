package header

import "strings"

const toLower = 'a' - 'A'

// isTokenTable is copied from net/http/lex.go's isTokenTable; see
// https://httpwg.github.io/specs/rfc7230.html#rule.token.separators
var isTokenTable = [127]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true,

	'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
	'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
	'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,

	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
	'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
	'Y': true, 'Z': true,

	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true, '*': true, '+': true,
	'-': true, '.': true, '^': true, '_': true, '`': true, '|': true, '~': true,
}

func validHeaderFieldByte(b byte) bool {
	return int(b) < len(isTokenTable) && isTokenTable[b]
}

// commonHeader interns the well-known header names so CanonicalKey doesn't
// allocate a new string for them.
var commonHeader = map[string]string{
	Accept: Accept, AcceptEncoding: AcceptEncoding, AcceptRanges: AcceptRanges,
	Authorization: Authorization, CacheControl: CacheControl, Connection: Connection,
	ContentEncoding: ContentEncoding, ContentLength: ContentLength, ContentRange: ContentRange,
	ContentType: ContentType, Date: Date, ETag: ETag, Host: Host,
	IfModifiedSince: IfModifiedSince, IfNoneMatch: IfNoneMatch, LastModified: LastModified,
	Location: Location, Range: Range, Server: Server, TransferEncoding: TransferEncoding,
	Upgrade: Upgrade, WWWAuthenticate: WWWAuthenticate, SecWebSocketKey: SecWebSocketKey,
	SecWebSocketAccept: SecWebSocketAccept, SecWebSocketVersion: SecWebSocketVersion,
}

// CanonicalKey returns the canonical form of a header name: the first
// letter and any letter following a hyphen are upper case, the rest
// lower case ("content-type" -> "Content-Type"). A key that doesn't
// look like a header token (contains a space or non-token byte) is
// returned unchanged, matching net/textproto's fallback behavior.
func CanonicalKey(s string) string {
	if v, ok := commonHeader[s]; ok {
		return v
	}
	a := []byte(s)
	for _, c := range a {
		if !validHeaderFieldByte(c) {
			return s
		}
	}
	upper := true
	for i, c := range a {
		switch {
		case upper && 'a' <= c && c <= 'z':
			c -= toLower
		case !upper && 'A' <= c && c <= 'Z':
			c += toLower
		}
		a[i] = c
		upper = c == '-'
	}
	out := string(a)
	if v, ok := commonHeader[out]; ok {
		return v
	}
	// Well-known names whose canonical spelling isn't plain title case
	// ("ETag", "WWW-Authenticate", "Sec-WebSocket-Key") match by case folding.
	for _, v := range commonHeader {
		if strings.EqualFold(v, out) {
			return v
		}
	}
	return out
}

package lanserve

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/badu/lanserve/header"
)

// authNonces is the per-server, mutex-guarded digest-nonce store spec.md
// §5 requires ("Digest-auth nonce state is per-server and mutex-guarded").
type authNonces struct {
	mu     sync.Mutex
	issued map[string]time.Time
}

func newAuthNonces() *authNonces { return &authNonces{issued: map[string]time.Time{}} }

const nonceLifetime = 5 * time.Minute

func (n *authNonces) mint() string {
	raw, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		// uuid's CSPRNG call failing is only plausible if the OS entropy
		// source is unavailable; fall back to a time-derived nonce rather
		// than panic mid-handshake.
		raw = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	}
	nonce := base64.StdEncoding.EncodeToString(raw)
	n.mu.Lock()
	n.issued[nonce] = time.Now()
	n.mu.Unlock()
	return nonce
}

// check reports whether nonce was issued by this server and whether it
// has gone stale. An unknown nonce is rejected outright; a known, stale
// nonce is recognized this one time (and then forgotten) and flagged so
// the caller rejects it with a fresh challenge carrying stale=true
// (spec.md §4.2).
func (n *authNonces) check(nonce string) (known, stale bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	issuedAt, ok := n.issued[nonce]
	if !ok {
		return false, false
	}
	if time.Since(issuedAt) > nonceLifetime {
		delete(n.issued, nonce)
		return true, true
	}
	return true, false
}

// checkAuth enforces opts.AuthenticationMethod against the request's
// Authorization header, returning nil when the request is authorized
// and a ready-to-send 401 Response (with the appropriate
// WWW-Authenticate challenge) otherwise.
func (s *Server) checkAuth(method, uri string, h header.Header) *Response {
	switch s.opts.AuthenticationMethod {
	case AuthNone:
		return nil
	case AuthBasic:
		return s.checkBasicAuth(h)
	case AuthDigest:
		return s.checkDigestAuth(method, uri, h)
	default:
		return nil
	}
}

func (s *Server) checkBasicAuth(h header.Header) *Response {
	const prefix = "Basic "
	auth := h.Get(header.Authorization)
	if strings.HasPrefix(auth, prefix) {
		decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
		if err == nil {
			if user, pass, ok := strings.Cut(string(decoded), ":"); ok {
				if want, exists := s.opts.AuthenticationAccounts[user]; exists &&
					subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1 {
					return nil
				}
			}
		}
	}
	resp := NewResponseWithStatus(401)
	resp.AdditionalHeaders.Set(header.WWWAuthenticate,
		fmt.Sprintf(`Basic realm=%q`, s.opts.AuthenticationRealm))
	return resp
}

func (s *Server) checkDigestAuth(method, uri string, h header.Header) *Response {
	auth := h.Get(header.Authorization)
	if strings.HasPrefix(auth, "Digest ") {
		params := parseDigestParams(auth[len("Digest "):])
		user := params["username"]
		pass, exists := s.opts.AuthenticationAccounts[user]
		known, stale := s.nonces.check(params["nonce"])
		if exists && known && !stale {
			ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", user, s.opts.AuthenticationRealm, pass))
			ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
			want := md5Hex(strings.Join([]string{
				ha1, params["nonce"], params["nc"], params["cnonce"], params["qop"], ha2,
			}, ":"))
			if subtle.ConstantTimeCompare([]byte(params["response"]), []byte(want)) == 1 {
				return nil
			}
		}
		if known && stale {
			return s.digestChallenge(true)
		}
	}
	return s.digestChallenge(false)
}

func (s *Server) digestChallenge(stale bool) *Response {
	resp := NewResponseWithStatus(401)
	challenge := fmt.Sprintf(`Digest realm=%q, nonce=%q, qop="auth"`, s.opts.AuthenticationRealm, s.nonces.mint())
	if stale {
		challenge += `, stale=true`
	}
	resp.AdditionalHeaders.Set(header.WWWAuthenticate, challenge)
	return resp
}

func md5Hex(s string) string { return fmt.Sprintf("%x", md5.Sum([]byte(s))) }

// parseDigestParams parses the comma-separated key=value (optionally
// quoted) list in a Digest Authorization header.
func parseDigestParams(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return out
}

package lanserve

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/badu/lanserve/header"
)

// MatchFunc decides whether a handler accepts an incoming request and,
// if so, produces the Request value its Process function will receive
// once the body has been read (spec.md §3: "the returned Request is the
// object into which the body will be written"). A nil return means no
// match.
type MatchFunc func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request

// ProcessFunc produces a Response for a matched, fully-read Request. A
// nil return is treated as a 500 (spec.md §4.2: "If process returns
// null, synthesize a 500 response").
type ProcessFunc func(*Request) *Response

// Handler is spec.md §3's "pair of pure functions" — modeled as a plain
// struct of two function values per spec.md §9's design note ("block-based
// match/process -> plain function values; nothing in the contract
// requires objects").
type Handler struct {
	Match   MatchFunc
	Process ProcessFunc
}

// AddHandler appends h to the registry. Handlers may only be added
// while the server is not running (spec.md §3 invariant: "the handler
// list is immutable while running").
func (s *Server) AddHandler(h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrServerAlreadyRunning
	}
	s.handlers = append(s.handlers, h)
	return nil
}

// RemoveAllHandlers clears the registry. Same running-state restriction
// as AddHandler.
func (s *Server) RemoveAllHandlers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrServerAlreadyRunning
	}
	s.handlers = nil
	return nil
}

// matchResult distinguishes "no handler recognized this path at all"
// from "a handler recognized the path but not this method", which
// spec.md §4.2 requires to tell 404 from 405 apart.
type matchResult struct {
	request    *Request
	process    ProcessFunc
	pathExists bool
}

// matchHandler walks the registry last-registered-first (spec.md §3:
// "the last-registered handler whose match returns non-null wins").
func (s *Server) matchHandler(method string, u *url.URL, h header.Header, path string, query url.Values) matchResult {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		if req := handlers[i].Match(method, u, h, path, query); req != nil {
			return matchResult{request: req, process: handlers[i].Process, pathExists: true}
		}
	}
	return matchResult{}
}

// pathExistsForOtherMethod reports whether any handler would match path
// under a different method, used to choose 404 vs 405 when nothing
// matched the actual request.
func (s *Server) pathExistsForOtherMethod(u *url.URL, h header.Header, path string, query url.Values) bool {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	for _, candidate := range []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"} {
		for i := len(handlers) - 1; i >= 0; i-- {
			if req := handlers[i].Match(candidate, u, h, path, query); req != nil {
				req.discard()
				return true
			}
		}
	}
	return false
}

// --- convenience builders (spec.md §4.3) ---

// HandlerForMethod matches any path for the given method, producing a
// Request via newRequest on match.
func HandlerForMethod(method string, newRequest RequestFactory, process ProcessFunc) Handler {
	method = strings.ToUpper(method)
	return Handler{
		Match: func(m string, u *url.URL, h header.Header, path string, q url.Values) *Request {
			if !strings.EqualFold(m, method) {
				return nil
			}
			return newRequest(m, u, h, path, q)
		},
		Process: process,
	}
}

// HandlerForPath matches an exact, case-insensitive path for the given
// method.
func HandlerForPath(method, path string, newRequest RequestFactory, process ProcessFunc) Handler {
	method = strings.ToUpper(method)
	return Handler{
		Match: func(m string, u *url.URL, h header.Header, p string, q url.Values) *Request {
			if !strings.EqualFold(m, method) || !strings.EqualFold(p, path) {
				return nil
			}
			return newRequest(m, u, h, p, q)
		},
		Process: process,
	}
}

// HandlerForPathRegex matches a path against an anchored, whole-path
// regular expression.
func HandlerForPathRegex(method string, re *regexp.Regexp, newRequest RequestFactory, process ProcessFunc) Handler {
	method = strings.ToUpper(method)
	whole := regexp.MustCompile(`^(?:` + re.String() + `)$`)
	return Handler{
		Match: func(m string, u *url.URL, h header.Header, p string, q url.Values) *Request {
			if !strings.EqualFold(m, method) || !whole.MatchString(p) {
				return nil
			}
			return newRequest(m, u, h, p, q)
		},
		Process: process,
	}
}

// HandlerForBasePath matches any path beneath basePath (a case-sensitive,
// recursive prefix match per spec.md §4.3) for the given method.
func HandlerForBasePath(method, basePath string, newRequest RequestFactory, process ProcessFunc) Handler {
	method = strings.ToUpper(method)
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return Handler{
		Match: func(m string, u *url.URL, h header.Header, p string, q url.Values) *Request {
			if !strings.EqualFold(m, method) || !strings.HasPrefix(p, basePath) {
				return nil
			}
			return newRequest(m, u, h, p, q)
		},
		Process: process,
	}
}

// RequestFactory constructs the Request subtype a handler wants its
// body written into; NewMemoryRequest covers the common case of
// "accumulate the body to memory".
type RequestFactory func(method string, u *url.URL, h header.Header, path string, query url.Values) *Request

package lanserve

import (
	"net/url"
	"testing"

	"github.com/badu/lanserve/header"
	"github.com/badu/lanserve/logsink"
)

func TestMatchHandlerLastRegisteredWins(t *testing.T) {
	srv := NewServer(logsink.Discard)
	firstCalled := false
	secondCalled := false

	mustAddHandler(t, srv, HandlerForPath("GET", "/thing", NewMemoryRequest(0), func(r *Request) *Response {
		firstCalled = true
		return NewTextResponse("first")
	}))
	mustAddHandler(t, srv, HandlerForPath("GET", "/thing", NewMemoryRequest(0), func(r *Request) *Response {
		secondCalled = true
		return NewTextResponse("second")
	}))

	result := srv.matchHandler("GET", mustURL(t, "http://x/thing"), header.New(), "/thing", url.Values{})
	if result.request == nil {
		t.Fatal("expected a match")
	}
	resp := result.process(result.request)
	body := readAllBody(t, resp)
	if string(body) != "second" {
		t.Fatalf("body = %q, want %q", body, "second")
	}
	if firstCalled {
		t.Fatal("expected only the last-registered handler to run")
	}
	if !secondCalled {
		t.Fatal("expected the last-registered handler to run")
	}
}

func TestMatchHandlerNoMatch(t *testing.T) {
	srv := NewServer(logsink.Discard)
	mustAddHandler(t, srv, HandlerForPath("GET", "/thing", NewMemoryRequest(0), func(r *Request) *Response {
		return NewResponse()
	}))

	result := srv.matchHandler("GET", mustURL(t, "http://x/other"), header.New(), "/other", url.Values{})
	if result.request != nil {
		t.Fatal("expected no match")
	}
}

func TestPathExistsForOtherMethodDistinguishes404From405(t *testing.T) {
	srv := NewServer(logsink.Discard)
	mustAddHandler(t, srv, HandlerForPath("POST", "/thing", NewMemoryRequest(0), func(r *Request) *Response {
		return NewResponse()
	}))

	if !srv.pathExistsForOtherMethod(mustURL(t, "http://x/thing"), header.New(), "/thing", url.Values{}) {
		t.Fatal("expected /thing to exist for POST")
	}
	if srv.pathExistsForOtherMethod(mustURL(t, "http://x/nope"), header.New(), "/nope", url.Values{}) {
		t.Fatal("expected /nope to not exist for any method")
	}
}

func TestHandlerForBasePathRecursivePrefix(t *testing.T) {
	h := HandlerForBasePath("GET", "/static", NewMemoryRequest(0), func(r *Request) *Response {
		return NewResponse()
	})
	if req := h.Match("GET", mustURL(t, "http://x/static/a/b.js"), header.New(), "/static/a/b.js", url.Values{}); req == nil {
		t.Fatal("expected a nested path under the base to match")
	}
	if req := h.Match("GET", mustURL(t, "http://x/staticfoo"), header.New(), "/staticfoo", url.Values{}); req != nil {
		t.Fatal("expected a path that merely shares a prefix (no slash boundary) to not match")
	}
}

func TestHandlerForPathRegex(t *testing.T) {
	re := mustRegex(t, `^/users/\d+$`)
	h := HandlerForPathRegex("GET", re, NewMemoryRequest(0), func(r *Request) *Response {
		return NewResponse()
	})
	if req := h.Match("GET", mustURL(t, "http://x/users/42"), header.New(), "/users/42", url.Values{}); req == nil {
		t.Fatal("expected /users/42 to match")
	}
	if req := h.Match("GET", mustURL(t, "http://x/users/abc"), header.New(), "/users/abc", url.Values{}); req != nil {
		t.Fatal("expected /users/abc to not match")
	}
}

func TestAddHandlerRejectedWhileRunning(t *testing.T) {
	srv := NewServer(logsink.Discard)
	srv.running = true
	err := srv.AddHandler(HandlerForMethod("GET", NewMemoryRequest(0), func(r *Request) *Response {
		return NewResponse()
	}))
	if err != ErrServerAlreadyRunning {
		t.Fatalf("err = %v, want ErrServerAlreadyRunning", err)
	}
}

func mustAddHandler(t *testing.T, srv *Server, h Handler) {
	t.Helper()
	if err := srv.AddHandler(h); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

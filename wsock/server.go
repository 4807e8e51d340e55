package wsock

import (
	"net/url"
	"strings"
	"time"

	"github.com/badu/lanserve"
	"github.com/badu/lanserve/header"
	"github.com/badu/lanserve/logsink"
)

// Transport is the bundle of optional notifications spec.md §4.6
// describes as "a Server subclass exposing ... a transport delegate
// with transportWillStart/WillEnd/received", modeled the same way
// lanserve.Delegate is: a struct of optional function fields.
type Transport struct {
	WillStart func(*Conn)
	Received  func(*Conn, Opcode, []byte)
	WillEnd   func(*Conn)
}

// Server wraps a *lanserve.Server with the WebSocket-specific knobs
// spec.md §4.6 calls out: a long-read Timeout and a Transport delegate.
// It is composition rather than subclassing, Go's idiom for the same
// "add behavior to an existing server" need.
type Server struct {
	*lanserve.Server
	Timeout   time.Duration
	Transport Transport
}

// NewServer constructs a Server logging through sink.
func NewServer(sink logsink.Sink) *Server {
	return &Server{
		Server:  lanserve.NewServer(sink),
		Timeout: defaultTimeout,
	}
}

// Upgrade builds a lanserve.Handler that accepts the WebSocket handshake
// at the given exact path, completes it, and drives the resulting
// connection through s.Transport until it closes. Register it with
// s.AddHandler before calling s.Start.
func (s *Server) Upgrade(path string) lanserve.Handler {
	return lanserve.Handler{
		Match: func(method string, u *url.URL, h header.Header, p string, q url.Values) *lanserve.Request {
			if !strings.EqualFold(method, "GET") || p != path {
				return nil
			}
			return lanserve.NewMemoryRequest(0)(method, u, h, p, q)
		},
		Process: func(req *lanserve.Request) *lanserve.Response {
			if !IsUpgradeRequest(req) {
				return lanserve.NewResponseWithStatus(400)
			}
			conn, err := Accept(req)
			if err != nil {
				return lanserve.NewResponseWithStatus(400)
			}
			conn.SetTimeout(s.Timeout)
			if s.Transport.WillStart != nil {
				s.Transport.WillStart(conn)
			}
			conn.Serve(func(op Opcode, payload []byte) {
				if s.Transport.Received != nil {
					s.Transport.Received(conn, op, payload)
				}
			})
			if s.Transport.WillEnd != nil {
				s.Transport.WillEnd(conn)
			}
			return lanserve.HijackedResponse()
		},
	}
}

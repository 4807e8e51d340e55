package lanserve

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/badu/lanserve/logsink"
)

// Server is spec.md §3's Listener: it owns the bound socket, the
// handler list, the options, the set of live Connections and the
// connect/disconnect coalescing timer.
type Server struct {
	mu       sync.RWMutex
	handlers []Handler
	running  bool

	opts     Options
	delegate *Delegate
	nonces   *authNonces

	listener net.Listener
	port     uint16
	paused   int32 // atomic bool: accept loop parks new accepts while nonzero

	connsMu sync.Mutex
	conns   map[uint64]*Connection
	nextID  uint64

	coalesce *coalescingTimer

	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewServer constructs a Server that logs through sink (use
// logsink.Discard if you don't want logging).
func NewServer(sink logsink.Sink) *Server {
	if sink == nil {
		sink = logsink.Discard
	}
	return &Server{
		opts:   Options{Logger: sink},
		conns:  map[uint64]*Connection{},
		doneCh: make(chan struct{}),
	}
}

// SetDelegate installs the lifecycle notification bundle.
func (s *Server) SetDelegate(d *Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

// Running reports whether the server currently has a bound listener.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Port returns the bound port (meaningful only once Running()).
func (s *Server) Port() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// URL returns the server's base URL, e.g. "http://127.0.0.1:8080/".
func (s *Server) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", s.Port()), Path: "/"}
}

func (s *Server) log(level logsink.Level, format string, args ...interface{}) {
	s.opts.Logger.Log(level, format, args...)
}

// Start binds the configured port and spawns the accept loop. It
// returns once the socket is bound; Serve errors after that point are
// logged, not returned (spec.md §6: "Server.start(options) -> bool").
func (s *Server) Start(opts Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("lanserve: already running")
	}
	opts = opts.withDefaults()
	s.opts = opts
	s.nonces = newAuthNonces()
	s.coalesce = newCoalescingTimer(opts.ConnectedStateCoalescingInterval, s)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		ln = tcpKeepAliveListener{tcpLn}
	}
	s.listener = ln
	s.port = uint16(ln.Addr().(*net.TCPAddr).Port)
	s.running = true
	s.doneCh = make(chan struct{})
	delegate := s.delegate
	s.mu.Unlock()

	if opts.Announcer != nil {
		err := opts.Announcer.Announce(opts.BonjourName, s.port)
		if delegate != nil && delegate.OnServiceRegistrationComplete != nil {
			delegate.OnServiceRegistrationComplete(err)
		}
	}

	if delegate != nil && delegate.OnStart != nil {
		delegate.OnStart()
	}
	go s.acceptLoop()
	return nil
}

// Stop closes the bound socket and returns immediately; in-flight
// connections drain to natural completion (spec.md §4.1: "stop ...
// returns immediately without aborting in-flight connections").
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ln := s.listener
	delegate := s.delegate
	announcer := s.opts.Announcer
	close(s.doneCh)
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if announcer != nil {
		announcer.Withdraw()
	}
	if s.coalesce != nil {
		s.coalesce.stop()
	}
	if delegate != nil && delegate.OnStop != nil {
		delegate.OnStop()
	}
}

// PauseAccepting stops handing new sockets to Connections without
// closing the listening socket (spec.md §9: mobile background-suspend
// hook, "first-class operations; do not special-case a platform").
func (s *Server) PauseAccepting() { atomic.StoreInt32(&s.paused, 1) }

// ResumeAccepting undoes PauseAccepting.
func (s *Server) ResumeAccepting() { atomic.StoreInt32(&s.paused, 0) }

func (s *Server) acceptLoop() {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.doneCh:
				return // Stop() closed the listener; this is expected.
			default:
				s.log(logsink.Error, "accept: %v", err)
				return
			}
		}
		if atomic.LoadInt32(&s.paused) != 0 {
			c.Close()
			continue
		}
		s.spawnConnection(c)
	}
}

func (s *Server) spawnConnection(netConn net.Conn) {
	s.mu.RLock()
	newConn := s.opts.NewConnection
	s.mu.RUnlock()

	var conn *Connection
	if newConn != nil {
		conn = newConn(s, netConn)
	} else {
		conn = newConnection(s, netConn)
	}

	s.connsMu.Lock()
	s.nextID++
	conn.id = s.nextID
	s.conns[conn.id] = conn
	liveCount := len(s.conns)
	s.connsMu.Unlock()

	if s.coalesce != nil {
		s.coalesce.noteLiveCount(liveCount)
	}

	go func() {
		conn.serve()
		s.connsMu.Lock()
		delete(s.conns, conn.id)
		liveCount := len(s.conns)
		s.connsMu.Unlock()
		if s.coalesce != nil {
			s.coalesce.noteLiveCount(liveCount)
		}
	}()
}

// tcpKeepAliveListener sets TCP keep-alive on every accepted connection,
// grounded on badu-http's tcp_keep_alive_listener.go (itself lifted from
// net/http), with the period now sourced from a constant rather than
// badu-http's "TODO: should be configurable".
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// coalescingTimer implements spec.md §4.1's connect/disconnect
// coalescing: didConnect fires at the 0->N live-connection transition;
// didDisconnect fires ConnectedStateCoalescingInterval seconds after the
// last connection goes idle. An interval <= 0 disables coalescing and
// fires synchronously with the count transitions.
type coalescingTimer struct {
	mu       sync.Mutex
	interval time.Duration
	srv      *Server
	hasLive  bool
	timer    *time.Timer
	stopped  bool
}

func newCoalescingTimer(interval time.Duration, srv *Server) *coalescingTimer {
	return &coalescingTimer{interval: interval, srv: srv}
}

func (c *coalescingTimer) noteLiveCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	switch {
	case n > 0 && !c.hasLive:
		c.hasLive = true
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.fireConnect()
	case n == 0 && c.hasLive:
		if c.interval <= 0 {
			c.hasLive = false
			c.fireDisconnect()
			return
		}
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = time.AfterFunc(c.interval, func() {
			c.mu.Lock()
			c.hasLive = false
			c.timer = nil
			c.mu.Unlock()
			c.fireDisconnect()
		})
	case n > 0 && c.hasLive && c.timer != nil:
		// A reconnect arrived inside the coalescing window: cancel the
		// pending disconnect notification (spec.md GLOSSARY: "coalescing
		// interval ... merged into a single delegate notification").
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *coalescingTimer) fireConnect() {
	c.srv.mu.RLock()
	d := c.srv.delegate
	c.srv.mu.RUnlock()
	if d != nil && d.OnConnect != nil {
		d.OnConnect()
	}
}

func (c *coalescingTimer) fireDisconnect() {
	c.srv.mu.RLock()
	d := c.srv.delegate
	c.srv.mu.RUnlock()
	if d != nil && d.OnDisconnect != nil {
		d.OnDisconnect()
	}
}

func (c *coalescingTimer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

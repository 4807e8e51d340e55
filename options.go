package lanserve

import (
	"net"
	"time"

	"github.com/badu/lanserve/logsink"
)

// AuthMethod selects the HTTP authentication scheme the connection FSM
// enforces before matching a handler (spec.md §4.2).
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthBasic
	AuthDigest
)

// Announcer is the service-discovery collaborator spec.md §1 keeps out
// of the core: "supply announce(name, port) / withdraw() hooks". A nil
// Announcer is a no-op.
type Announcer interface {
	Announce(name string, port uint16) error
	Withdraw()
}

// Options is the explicit configuration value spec.md §9's design notes
// call for in place of a string-keyed option bag: "the dictionary form
// is a legacy detail."
type Options struct {
	// Port to bind; 0 lets the OS choose one (read back via Server.Port
	// after Start).
	Port uint16

	// BonjourName and Announcer implement spec.md §1's "announce/withdraw"
	// external collaborator. Announcer may be nil.
	BonjourName string
	Announcer   Announcer

	// MaxPendingConnections defaults to 16. It is not applied to the
	// listener: the accept() backlog is the operating system's default.
	MaxPendingConnections int

	// ServerName is sent as the Server response header.
	ServerName string

	AuthenticationMethod   AuthMethod
	AuthenticationRealm    string
	AuthenticationAccounts map[string]string // username -> plaintext password

	// NewConnection is the Connection constructor hook point (spec.md §9:
	// "ConnectionClass... hook point for subclasses"). Nil uses the
	// package's default constructor, newConnection.
	NewConnection func(*Server, net.Conn) *Connection

	// DisableHEADToGET turns off folding HEAD onto a registered GET
	// handler when no handler matches HEAD directly. Folding is enabled
	// by default (spec.md §4.1: "AutomaticallyMapHEADToGET, default
	// true"); set this to true to opt out.
	DisableHEADToGET bool

	// ConnectedStateCoalescingInterval governs didConnect/didDisconnect
	// coalescing (spec.md §4.1). Zero selects the one-second default; a
	// negative value disables coalescing.
	ConnectedStateCoalescingInterval time.Duration

	// MaxRequestBodyBytes caps a request body; 0 means unbounded at the
	// server level (a handler-level cap, if any, still applies).
	MaxRequestBodyBytes int64

	// ReadHeaderTimeout bounds how long a connection may spend in
	// READ_REQUEST_LINE/READ_HEADERS before being aborted. Zero disables
	// the timeout.
	ReadHeaderTimeout time.Duration

	// TempDir is not read by the server: NewTempFileRequest and
	// NewMultipartFormRequest take their temp directory as an argument.
	TempDir string

	Logger logsink.Sink
}

// withDefaults returns a copy of o with zero-valued fields replaced by
// their documented defaults.
func (o Options) withDefaults() Options {
	if o.MaxPendingConnections == 0 {
		o.MaxPendingConnections = 16
	}
	if o.ConnectedStateCoalescingInterval == 0 {
		o.ConnectedStateCoalescingInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = logsink.Discard
	}
	return o
}

// Delegate is the bundle of optional server-lifecycle notifications
// spec.md §9 models as "a struct of optional function fields" in place
// of an Objective-C delegate protocol.
type Delegate struct {
	OnStart                       func()
	OnStop                        func()
	OnConnect                     func()
	OnDisconnect                  func()
	OnServiceRegistrationComplete func(err error)
}

package wsock

import (
	"bufio"
	"encoding/binary"
	"net"
	"sync"
	"time"
)

const (
	defaultReadInterval = 5 * time.Second
	defaultTimeout      = 60 * time.Second
)

// Conn is one upgraded WebSocket connection: the raw socket plus the
// buffered reader/writer handed over by Request.Hijack, and the
// long-read bookkeeping spec.md §4.6 requires.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	writeMu sync.Mutex

	readInterval time.Duration
	timeout      time.Duration
	lastReadData time.Time
}

func newConn(netConn net.Conn, br *bufio.Reader, bw *bufio.Writer) *Conn {
	return &Conn{
		netConn:      netConn,
		br:           br,
		bw:           bw,
		readInterval: defaultReadInterval,
		timeout:      defaultTimeout,
		lastReadData: time.Now(),
	}
}

// SetTimeout overrides the default 60s long-read timeout.
func (c *Conn) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// WriteFrame writes one frame to the wire; safe for concurrent callers.
func (c *Conn) WriteFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.bw.Write(Encode(f)); err != nil {
		return err
	}
	return c.bw.Flush()
}

// WriteText sends p as a single unfragmented text message.
func (c *Conn) WriteText(p []byte) error {
	return c.WriteFrame(Frame{FIN: true, Opcode: OpText, Payload: p})
}

// WriteBinary sends p as a single unfragmented binary message.
func (c *Conn) WriteBinary(p []byte) error {
	return c.WriteFrame(Frame{FIN: true, Opcode: OpBinary, Payload: p})
}

// Close sends a close frame carrying code, then tears down the socket.
func (c *Conn) Close(code uint16) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, code)
	c.WriteFrame(Frame{FIN: true, Opcode: OpClose, Payload: payload})
	return c.netConn.Close()
}

// Serve drives the read loop: it reassembles fragmented messages,
// answers pings with pongs echoing the payload, honors a peer-initiated
// close, and enforces the readInterval/timeout long-read discipline
// (spec.md §4.6), calling recv once per complete message. It returns
// when the peer closes the socket, a protocol error occurs, or the
// long-read timeout elapses.
func (c *Conn) Serve(recv func(opcode Opcode, payload []byte)) error {
	var msgOpcode Opcode
	var msgPayload []byte
	var inMessage bool

	decoder := &Decoder{}
	decoder.OnFrame = func(f Frame) {
		switch f.Opcode {
		case OpPing:
			c.WriteFrame(Frame{FIN: true, Opcode: OpPong, Payload: f.Payload})
			return
		case OpPong:
			return
		case OpClose:
			c.Close(CloseNormal)
			return
		}
		if !inMessage {
			msgOpcode = f.Opcode
			msgPayload = nil
			inMessage = true
		}
		msgPayload = append(msgPayload, f.Payload...)
		if f.FIN {
			if recv != nil {
				recv(msgOpcode, msgPayload)
			}
			inMessage = false
			msgPayload = nil
		}
	}

	var pending []byte
	readBuf := make([]byte, 4096)
	c.netConn.SetReadDeadline(time.Now().Add(c.readInterval))

	for {
		n, err := c.br.Read(readBuf)
		if n > 0 {
			c.lastReadData = time.Now()
			pending = append(pending, readBuf[:n]...)
			for {
				consumed, derr := decoder.Decode(pending)
				if derr != nil {
					c.Close(CloseProtocolError)
					return derr
				}
				if consumed == 0 {
					break
				}
				pending = pending[consumed:]
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(c.lastReadData) > c.timeout {
					c.Close(CloseNormal)
					return nil
				}
				c.netConn.SetReadDeadline(time.Now().Add(c.readInterval))
				continue
			}
			return err
		}
		c.netConn.SetReadDeadline(time.Now().Add(c.readInterval))
	}
}

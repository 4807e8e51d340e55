// Package wsock layers an RFC 6455 WebSocket upgrade and frame codec on
// top of a lanserve connection, via Request.Hijack.
package wsock

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/badu/lanserve"
	"github.com/badu/lanserve/header"
)

// acceptMagic is the RFC 6455 §1.3 handshake GUID.
const acceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const protocolVersion = "13"

// IsUpgradeRequest reports whether req is a well-formed WebSocket
// handshake: GET, Upgrade: websocket, a Connection header containing
// "upgrade", Sec-WebSocket-Version: 13, and a 16-byte base64
// Sec-WebSocket-Key (spec.md §4.6).
func IsUpgradeRequest(req *lanserve.Request) bool {
	if !strings.EqualFold(req.Method, "GET") {
		return false
	}
	if !strings.EqualFold(req.Header.Get(header.Upgrade), "websocket") {
		return false
	}
	if !strings.Contains(strings.ToLower(req.Header.Get(header.Connection)), "upgrade") {
		return false
	}
	if req.Header.Get(header.SecWebSocketVersion) != protocolVersion {
		return false
	}
	return validKey(req.Header.Get(header.SecWebSocketKey))
}

func validKey(key string) bool {
	raw, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(raw) == 16
}

// acceptValue computes Sec-WebSocket-Accept from the client's key per
// RFC 6455 §4.2.2: base64(SHA1(key + acceptMagic)).
func acceptValue(key string) string {
	sum := sha1.Sum([]byte(key + acceptMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Accept completes the handshake on req's underlying connection in
// place of a normal Response: it hijacks the socket, writes the 101
// Switching Protocols response, and returns a *Conn ready to exchange
// frames. Callers must return lanserve.HijackedResponse() from the
// ProcessFunc that called Accept.
func Accept(req *lanserve.Request) (*Conn, error) {
	if !IsUpgradeRequest(req) {
		return nil, fmt.Errorf("wsock: not a valid upgrade request")
	}
	netConn, br, bw, ok := req.Hijack()
	if !ok {
		return nil, fmt.Errorf("wsock: request does not support hijacking")
	}
	accept := acceptValue(req.Header.Get(header.SecWebSocketKey))
	if err := writeHandshakeResponse(bw, accept); err != nil {
		netConn.Close()
		return nil, err
	}
	return newConn(netConn, br, bw), nil
}

func writeHandshakeResponse(bw *bufio.Writer, accept string) error {
	lines := []string{
		"HTTP/1.1 101 Switching Protocols\r\n",
		header.Upgrade + ": websocket\r\n",
		header.Connection + ": Upgrade\r\n",
		header.SecWebSocketAccept + ": " + accept + "\r\n",
		"\r\n",
	}
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			return err
		}
	}
	return bw.Flush()
}

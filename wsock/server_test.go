package wsock

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/badu/lanserve"
	"github.com/badu/lanserve/logsink"
)

func TestServerUpgradeEchoesTextFrames(t *testing.T) {
	srv := NewServer(logsink.Discard)
	var started, ended bool
	srv.Transport = Transport{
		WillStart: func(*Conn) { started = true },
		Received: func(c *Conn, op Opcode, payload []byte) {
			if op == OpText {
				c.WriteText(payload)
			}
		},
		WillEnd: func(*Conn) { ended = true },
	}
	if err := srv.AddHandler(srv.Upgrade("/ws")); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}
	if err := srv.Start(lanserve.Options{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("writing handshake: %v", err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("status line = %q, want a 101 response", statusLine)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("reading handshake headers: %v", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	conn.Write(Encode(Frame{FIN: true, Opcode: OpText, Payload: []byte("hi")}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := br.Read(buf)
	if err != nil {
		t.Fatalf("reading echoed frame: %v", err)
	}
	want := []byte{0x81, 0x02, 0x68, 0x69}
	if n != len(want) {
		t.Fatalf("n = %d, want %d", n, len(want))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	if !started {
		t.Fatal("expected Transport.WillStart to fire")
	}
	if !ended {
		t.Fatal("expected Transport.WillEnd to fire after the socket closed")
	}
}

func TestServerUpgradeRejectsNonWebSocketRequest(t *testing.T) {
	srv := NewServer(logsink.Discard)
	if err := srv.AddHandler(srv.Upgrade("/ws")); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}
	if err := srv.Start(lanserve.Options{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	if !strings.Contains(statusLine, "400") {
		t.Fatalf("status line = %q, want a 400 response", statusLine)
	}
}

// Command lanserve-demo is a minimal embedding example: it registers a
// static file handler (with byte-range and conditional support), a
// chunked upload echo, and a WebSocket echo, then serves them on port
// 8080 until interrupted. digestProtectedExample shows the Options for
// Digest authentication; no digest-protected endpoint is served.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/badu/lanserve"
	"github.com/badu/lanserve/logsink"
	"github.com/badu/lanserve/mimetype"
	"github.com/badu/lanserve/wsock"
)

func main() {
	sink := logsink.NewDefault()
	srv := lanserve.NewServer(sink)

	srv.AddHandler(lanserve.HandlerForPath("GET", "/", lanserve.NewMemoryRequest(0), func(r *lanserve.Request) *lanserve.Response {
		return lanserve.NewHTMLResponse("<html><body><h1>lanserve demo</h1></body></html>")
	}))

	registerStaticFile(srv, "/readme.txt", "README.txt")
	registerUploadEcho(srv)
	registerWebSocketEcho(srv, sink)

	if err := srv.Start(lanserve.Options{
		Port:       8080,
		ServerName: "lanserve-demo",
	}); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}
	fmt.Printf("listening on http://127.0.0.1:%d\n", srv.Port())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	srv.Stop()
}

// registerStaticFile serves a single file with Range/conditional support,
// resolving its Content-Type by extension via the mimetype package.
func registerStaticFile(srv *lanserve.Server, path, diskPath string) {
	srv.AddHandler(lanserve.HandlerForPath("GET", path, lanserve.NewMemoryRequest(0), func(r *lanserve.Request) *lanserve.Response {
		resp, err := lanserve.NewFileResponse(diskPath, lanserve.FileResponseOptions{
			ContentType:    mimetype.ByExtension(diskPath),
			AllowByteRange: true,
		})
		if err != nil {
			return lanserve.NewResponseWithStatus(404)
		}
		return resp
	}))
}

// registerUploadEcho demonstrates a chunked-or-plain request body being
// accumulated to memory and echoed back.
func registerUploadEcho(srv *lanserve.Server) {
	srv.AddHandler(lanserve.HandlerForPath("POST", "/echo", lanserve.NewMemoryRequest(10<<20), func(r *lanserve.Request) *lanserve.Response {
		return lanserve.NewDataResponse(r.Body(), "application/octet-stream")
	}))
}

// registerWebSocketEcho wires a wsock.Server's Upgrade handler onto the
// main server, echoing every text frame it receives.
func registerWebSocketEcho(srv *lanserve.Server, sink logsink.Sink) {
	ws := wsock.NewServer(sink)
	ws.Transport = wsock.Transport{
		Received: func(c *wsock.Conn, op wsock.Opcode, payload []byte) {
			if op == wsock.OpText {
				c.WriteText(payload)
			}
		},
	}
	if err := srv.AddHandler(ws.Upgrade("/ws")); err != nil {
		fmt.Fprintln(os.Stderr, "register websocket handler:", err)
	}
}

// digestProtectedExample shows how Options wires up Digest authentication
// for a second server instance; left unused by the running demo but
// documents the pattern (spec.md §5).
func digestProtectedExample() lanserve.Options {
	return lanserve.Options{
		AuthenticationMethod:   lanserve.AuthDigest,
		AuthenticationRealm:    "lanserve-demo",
		AuthenticationAccounts: map[string]string{"admin": "change-me"},
	}
}

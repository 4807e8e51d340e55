package lanserve

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/badu/lanserve/logsink"
)

func TestServerStartAssignsPortAndStop(t *testing.T) {
	srv := NewServer(logsink.Discard)
	if err := srv.Start(Options{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	if !srv.Running() {
		t.Fatal("expected Running() after Start")
	}
	if srv.Port() == 0 {
		t.Fatal("expected a nonzero ephemeral port")
	}
	srv.Stop()
	if srv.Running() {
		t.Fatal("expected Running() to be false after Stop")
	}
}

func TestServerStartTwiceFails(t *testing.T) {
	srv := NewServer(logsink.Discard)
	if err := srv.Start(Options{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()
	if err := srv.Start(Options{}); err == nil {
		t.Fatal("expected the second Start to fail while already running")
	}
}

func TestPauseAndResumeAcceptingToggleFlag(t *testing.T) {
	srv := NewServer(logsink.Discard)
	if err := srv.Start(Options{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	srv.PauseAccepting()
	if atomic.LoadInt32(&srv.paused) != 1 {
		t.Fatal("expected paused flag to be set")
	}
	srv.ResumeAccepting()
	if atomic.LoadInt32(&srv.paused) != 0 {
		t.Fatal("expected paused flag to be cleared")
	}
}

func TestCoalescingTimerFiresConnectImmediately(t *testing.T) {
	srv := &Server{}
	var connects, disconnects int32
	srv.delegate = &Delegate{
		OnConnect:    func() { atomic.AddInt32(&connects, 1) },
		OnDisconnect: func() { atomic.AddInt32(&disconnects, 1) },
	}
	timer := newCoalescingTimer(50*time.Millisecond, srv)

	timer.noteLiveCount(1)
	if atomic.LoadInt32(&connects) != 1 {
		t.Fatal("expected OnConnect to fire synchronously on 0->1 transition")
	}

	timer.noteLiveCount(0)
	if atomic.LoadInt32(&disconnects) != 0 {
		t.Fatal("expected OnDisconnect to be deferred by the coalescing interval")
	}
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&disconnects) != 1 {
		t.Fatal("expected OnDisconnect to fire after the coalescing interval elapses")
	}
	timer.stop()
}

func TestCoalescingTimerCancelsPendingDisconnectOnReconnect(t *testing.T) {
	srv := &Server{}
	var disconnects int32
	srv.delegate = &Delegate{
		OnDisconnect: func() { atomic.AddInt32(&disconnects, 1) },
	}
	timer := newCoalescingTimer(50*time.Millisecond, srv)

	timer.noteLiveCount(1)
	timer.noteLiveCount(0)
	timer.noteLiveCount(1) // reconnect inside the coalescing window
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&disconnects) != 0 {
		t.Fatal("expected the pending disconnect notification to be canceled by the reconnect")
	}
	timer.stop()
}

func TestCoalescingTimerZeroIntervalFiresSynchronously(t *testing.T) {
	srv := &Server{}
	var disconnects int32
	srv.delegate = &Delegate{
		OnDisconnect: func() { atomic.AddInt32(&disconnects, 1) },
	}
	timer := newCoalescingTimer(0, srv)
	timer.noteLiveCount(1)
	timer.noteLiveCount(0)
	if atomic.LoadInt32(&disconnects) != 1 {
		t.Fatal("expected OnDisconnect to fire synchronously when coalescing is disabled")
	}
}

package shell

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agent-racer/tcpsess/internal/config"
	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/registry"
)

// syncBuffer lets the test read output while Run is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %q; got:\n%s", want, out.String())
}

func newTestShell(t *testing.T) (*Shell, *syncBuffer) {
	t.Helper()
	cfg, err := config.LoadOrDefault("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	out := &syncBuffer{}
	return New(driver.New(cfg, registry.NewStore()), out, 0), out
}

func TestRun_SessionRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		if c, err := ln.Accept(); err == nil {
			accepted <- c
		}
	}()

	sh, out := newTestShell(t)
	lines := make(chan string)
	done := make(chan error, 1)
	go func() { done <- sh.Run(context.Background(), lines) }()

	lines <- fmt.Sprintf("connect 1 %s echo", ln.Addr())
	waitOutput(t, out, "* session 1 connected to "+ln.Addr().String())

	var peer net.Conn
	select {
	case peer = <-accepted:
		defer peer.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("peer never accepted")
	}

	lines <- "send 1 hello world"
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := bufio.NewReader(peer).ReadString('\n')
	if err != nil || got != "hello world\r\n" {
		t.Fatalf("peer read %q, %v", got, err)
	}

	peer.Write([]byte("pong\r\n"))
	waitOutput(t, out, "[1] pong")

	lines <- "list"
	waitOutput(t, out, "echo")

	lines <- "bogus"
	waitOutput(t, out, `unknown command "bogus"`)

	lines <- "quit"
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after quit")
	}
	if !strings.Contains(out.String(), "* session 1 ended") {
		t.Errorf("shutdown did not report the session ending; output:\n%s", out.String())
	}
}

func TestRun_ReportsErrors(t *testing.T) {
	sh, out := newTestShell(t)
	lines := make(chan string)
	done := make(chan error, 1)
	go func() { done <- sh.Run(context.Background(), lines) }()

	lines <- "close 5"
	waitOutput(t, out, "error: driver: unknown session")

	lines <- "connect 7 127.0.0.1:1"
	waitOutput(t, out, "* session 7 failed:")

	lines <- "list"
	waitOutput(t, out, "STATE")

	close(lines)
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	sh, _ := newTestShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sh.Run(ctx, make(chan string)) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

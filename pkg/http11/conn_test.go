//go:build linux

package http11

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// connPair wires a Conn to one end of a socketpair and returns the
// peer as an *os.File for driving the exchange.
func connPair(t *testing.T, srcDir string, isET bool, verify UserVerifier) (*Conn, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}

	c := NewConn(srcDir, isET, verify)
	c.Init(fds[0], "test-peer")
	t.Cleanup(c.Close)

	peer := os.NewFile(uintptr(fds[1]), "peer")
	t.Cleanup(func() { peer.Close() })
	return c, peer
}

func drainPeer(t *testing.T, peer *os.File) string {
	t.Helper()
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	out := make([]byte, 64*1024)
	n, err := peer.Read(out)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	return string(out[:n])
}

func TestConnServesRequest(t *testing.T) {
	dir := t.TempDir()
	const content = "hello, world\n"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, peer := connPair(t, dir, true, nil)
	if _, err := peer.WriteString("GET /index.html HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Read(); err != nil && err != unix.EAGAIN {
		t.Fatalf("Read: %v", err)
	}
	if !c.Process() {
		t.Fatal("Process = false with a full request buffered")
	}
	if c.ToWriteBytes() == 0 {
		t.Fatal("ToWriteBytes = 0 with a response assembled")
	}
	if !c.IsKeepAlive() {
		t.Errorf("IsKeepAlive = false, want true")
	}

	if _, err := c.Write(); err != nil && err != unix.EAGAIN {
		t.Fatalf("Write: %v", err)
	}
	if c.ToWriteBytes() != 0 {
		t.Errorf("ToWriteBytes = %d after Write, want 0", c.ToWriteBytes())
	}

	got := drainPeer(t, peer)
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("response = %q, want 200 status line", got)
	}
	if !strings.HasSuffix(got, content) {
		t.Errorf("response body missing file bytes: %q", got)
	}
	if !strings.Contains(got, "Content-length: 13\r\n\r\n") {
		t.Errorf("response missing content length: %q", got)
	}
}

func TestConnPartialRequestThenRest(t *testing.T) {
	c, peer := connPair(t, t.TempDir(), true, nil)

	if _, err := peer.WriteString("GET /index.html HTT"); err != nil {
		t.Fatal(err)
	}
	c.Read()
	if c.Process() {
		t.Fatal("Process = true on a half request")
	}

	if _, err := peer.WriteString("P/1.1\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	c.Read()
	if !c.Process() {
		t.Fatal("Process = false after the request completed")
	}
	if c.resp.Code() != 404 {
		t.Errorf("Code = %d against empty root, want 404", c.resp.Code())
	}
}

func TestConnMalformedRequestGets400(t *testing.T) {
	c, peer := connPair(t, t.TempDir(), true, nil)

	if _, err := peer.WriteString("GET / HTTP/x\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	c.Read()
	if !c.Process() {
		t.Fatal("Process = false on malformed request, want a 400 response")
	}
	if c.resp.Code() != 400 {
		t.Errorf("Code = %d, want 400", c.resp.Code())
	}
	if c.IsKeepAlive() {
		t.Errorf("IsKeepAlive = true on malformed request, want false")
	}
	c.Write()
	got := drainPeer(t, peer)
	if !strings.HasPrefix(got, "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("response = %q, want 400 status line", got)
	}
}

func TestConnCloseIdempotentAndCounted(t *testing.T) {
	before := UserCount.Load()
	c, _ := connPair(t, t.TempDir(), false, nil)
	if UserCount.Load() != before+1 {
		t.Errorf("UserCount = %d after Init, want %d", UserCount.Load(), before+1)
	}
	c.Close()
	c.Close()
	c.Close()
	if UserCount.Load() != before {
		t.Errorf("UserCount = %d after Close, want %d", UserCount.Load(), before)
	}
	if !c.IsClosed() {
		t.Errorf("IsClosed = false after Close")
	}
}

func TestConnKeepAliveSecondRequest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	c, peer := connPair(t, dir, true, nil)

	for i := 0; i < 2; i++ {
		if _, err := peer.WriteString("GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"); err != nil {
			t.Fatal(err)
		}
		c.Read()
		if !c.Process() {
			t.Fatalf("request %d: Process = false", i)
		}
		c.Write()
		got := drainPeer(t, peer)
		if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
			t.Fatalf("request %d: response = %q", i, got)
		}
	}
}

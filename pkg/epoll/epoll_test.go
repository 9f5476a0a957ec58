//go:build linux

package epoll

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAddWaitEvent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	rfd := int(r.Fd())
	if err := p.Add(rfd, EventIn); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Nothing readable yet.
	n, err := p.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Errorf("Wait = %d events on idle pipe, want 0", n)
	}

	if _, err := w.WriteString("x"); err != nil {
		t.Fatal(err)
	}
	n, err = p.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("Wait = %d events, want 1", n)
	}
	if got := p.EventFd(0); got != rfd {
		t.Errorf("EventFd = %d, want %d", got, rfd)
	}
	if p.EventMask(0)&EventIn == 0 {
		t.Errorf("EventMask = %#x, want EPOLLIN set", p.EventMask(0))
	}
}

func TestModAndDel(t *testing.T) {
	p, err := NewSize(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := p.Add(fds[0], EventIn); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// A socket with empty send queue is immediately writable.
	if err := p.Mod(fds[0], EventOut); err != nil {
		t.Fatalf("Mod: %v", err)
	}
	n, err := p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || p.EventMask(0)&EventOut == 0 {
		t.Errorf("after Mod: n=%d mask=%#x, want writable event", n, p.EventMask(0))
	}

	if err := p.Del(fds[0]); err != nil {
		t.Fatalf("Del: %v", err)
	}
	n, err = p.Wait(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Wait = %d events after Del, want 0", n)
	}
}

func TestOneShotDelivery(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := p.Add(fds[0], EventIn|EventOneShot); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatal(err)
	}

	n, err := p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first Wait = %d, want 1", n)
	}

	// One-shot: readable data remains but the fd is disarmed until Mod.
	n, err = p.Wait(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second Wait = %d before rearm, want 0", n)
	}

	if err := p.Mod(fds[0], EventIn|EventOneShot); err != nil {
		t.Fatal(err)
	}
	n, err = p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Wait after rearm = %d, want 1", n)
	}
}

//go:build linux

// Package epoll wraps the Linux readiness facility behind the small
// surface the reactor needs: register, rearm, remove, wait.
package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event bits re-exported so callers do not import unix directly.
const (
	EventIn      = uint32(unix.EPOLLIN)
	EventOut     = uint32(unix.EPOLLOUT)
	EventHup     = uint32(unix.EPOLLHUP)
	EventErr     = uint32(unix.EPOLLERR)
	EventRdHup   = uint32(unix.EPOLLRDHUP)
	EventET      = uint32(unix.EPOLLET)
	EventOneShot = uint32(unix.EPOLLONESHOT)
)

// DefaultEventCap is the size of the fixed event array handed to each
// wait call.
const DefaultEventCap = 1024

// Poller owns one epoll instance. Add/Mod/Del may be called from any
// goroutine; Wait and the event accessors belong to the reactor
// goroutine only, since they share the event array.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates a poller with the default event capacity.
func New() (*Poller, error) {
	return NewSize(DefaultEventCap)
}

// NewSize creates a poller whose wait calls return at most eventCap
// events at a time.
func NewSize(eventCap int) (*Poller, error) {
	if eventCap <= 0 {
		eventCap = DefaultEventCap
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll: create: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, eventCap),
	}, nil
}

// Add registers fd with the given interest mask.
func (p *Poller) Add(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

// Mod rearms fd with a new interest mask. Required after every
// delivery for fds registered one-shot.
func (p *Poller) Mod(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

// Del removes fd from the interest set.
func (p *Poller) Del(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

func (p *Poller) ctl(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll: ctl fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks up to timeoutMs (-1 blocks indefinitely) and returns the
// number of ready events. EINTR is retried internally.
func (p *Poller) Wait(timeoutMs int) (int, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("epoll: wait: %w", err)
		}
		return n, nil
	}
}

// EventFd returns the fd of the i-th ready event of the last Wait.
func (p *Poller) EventFd(i int) int {
	return int(p.events[i].Fd)
}

// EventMask returns the event bits of the i-th ready event.
func (p *Poller) EventMask(i int) uint32 {
	return p.events[i].Events
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

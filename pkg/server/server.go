//go:build linux

// Package server wires the reactor together: the listen socket, the
// readiness poller, the deadline heap, the worker pool, and the
// connection map. One goroutine runs the event loop; payload I/O runs
// on the workers, serialised per connection by one-shot arming.
package server

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MgJun-ux/MyWebServer/pkg/epoll"
	"github.com/MgJun-ux/MyWebServer/pkg/http11"
	"github.com/MgJun-ux/MyWebServer/pkg/logger"
	"github.com/MgJun-ux/MyWebServer/pkg/timer"
	"github.com/MgJun-ux/MyWebServer/pkg/worker"
)

// Server is the reactor. The poller's event array, the timer heap, and
// accept handling belong to the Run goroutine; the connection map is
// shared with workers under connMu; epoll_ctl rearms may come from any
// goroutine.
type Server struct {
	cfg Config

	listenFd int
	wakeFd   int

	listenEvents uint32
	connEvents   uint32
	isET         bool

	poller *epoll.Poller
	heap   *timer.Heap
	pool   *worker.Pool

	connMu sync.RWMutex
	conns  map[int]*http11.Conn

	verify http11.UserVerifier

	closed  atomic.Bool
	stopped chan struct{}
}

// New builds the reactor and its listen socket. verify is handed to
// every connection's request parser; nil fails auth actions closed.
func New(cfg Config, verify http11.UserVerifier) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		conns:   make(map[int]*http11.Conn),
		heap:    timer.New(),
		verify:  verify,
		stopped: make(chan struct{}),
	}
	s.initEventMode(cfg.TrigMode)

	var err error
	s.listenFd, err = openListenSocket(cfg.Port, cfg.Linger)
	if err != nil {
		return nil, err
	}

	s.poller, err = epoll.NewSize(cfg.EventCap)
	if err != nil {
		unix.Close(s.listenFd)
		return nil, err
	}
	if err := s.poller.Add(s.listenFd, s.listenEvents|epoll.EventIn); err != nil {
		s.poller.Close()
		unix.Close(s.listenFd)
		return nil, fmt.Errorf("server: register listen fd: %w", err)
	}

	// Eventfd wakes the loop out of a timerless (-1) wait on Stop.
	s.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		s.poller.Close()
		unix.Close(s.listenFd)
		return nil, fmt.Errorf("server: eventfd: %w", err)
	}
	if err := s.poller.Add(s.wakeFd, epoll.EventIn); err != nil {
		s.poller.Close()
		unix.Close(s.listenFd)
		unix.Close(s.wakeFd)
		return nil, fmt.Errorf("server: register wake fd: %w", err)
	}

	s.pool = worker.New(cfg.ThreadCount)

	logger.Infof("========== server init ==========")
	logger.Infof("port: %d, linger: %v", cfg.Port, cfg.Linger)
	logger.Infof("listen mode: %s, conn mode: %s", trigName(s.listenEvents), trigName(s.connEvents))
	logger.Infof("src dir: %s", cfg.SrcDir)
	logger.Infof("worker count: %d", cfg.ThreadCount)
	return s, nil
}

// initEventMode derives the epoll interest masks from the trigger
// mode. Connections are always one-shot so at most one worker task is
// in flight per fd.
func (s *Server) initEventMode(trigMode int) {
	s.listenEvents = epoll.EventRdHup
	s.connEvents = epoll.EventOneShot | epoll.EventRdHup
	if trigMode&1 != 0 {
		s.connEvents |= epoll.EventET
	}
	if trigMode&2 != 0 {
		s.listenEvents |= epoll.EventET
	}
	if trigMode < 0 || trigMode > 3 {
		s.listenEvents |= epoll.EventET
		s.connEvents |= epoll.EventET
	}
	s.isET = s.connEvents&epoll.EventET != 0
}

func trigName(events uint32) string {
	if events&epoll.EventET != 0 {
		return "ET"
	}
	return "LT"
}

// Run executes the event loop until Stop. It owns timer ticking and
// all accept handling.
func (s *Server) Run() {
	logger.Infof("========== server start ==========")
	for !s.closed.Load() {
		timeoutMs := -1
		if s.cfg.TimeoutMs > 0 {
			timeoutMs = s.heap.NextTickMs()
		}
		n, err := s.poller.Wait(timeoutMs)
		if err != nil {
			logger.Errorf("poll wait: %v", err)
			continue
		}
		for i := 0; i < n; i++ {
			fd := s.poller.EventFd(i)
			events := s.poller.EventMask(i)
			switch {
			case fd == s.listenFd:
				s.dealListen()
			case fd == s.wakeFd:
				s.drainWake()
			case events&(epoll.EventRdHup|epoll.EventHup|epoll.EventErr) != 0:
				if c := s.lookup(fd); c != nil {
					s.closeConn(c)
				}
			case events&epoll.EventIn != 0:
				if c := s.lookup(fd); c != nil {
					s.extendTime(c)
					s.pool.AddTask(func() { s.onRead(c) })
				}
			case events&epoll.EventOut != 0:
				if c := s.lookup(fd); c != nil {
					s.extendTime(c)
					s.pool.AddTask(func() { s.onWrite(c) })
				}
			default:
				logger.Errorf("unexpected event %#x on fd %d", events, fd)
			}
		}
	}
	s.teardown()
	close(s.stopped)
}

// Stop asks the loop to exit and blocks until teardown finished.
func (s *Server) Stop() {
	if s.closed.Swap(true) {
		return
	}
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	unix.Write(s.wakeFd, one[:])
	<-s.stopped
}

func (s *Server) teardown() {
	unix.Close(s.listenFd)

	s.connMu.Lock()
	open := make([]*http11.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.connMu.Unlock()
	for _, c := range open {
		s.closeConn(c)
	}

	s.pool.Shutdown()
	s.heap.Clear()
	unix.Close(s.wakeFd)
	s.poller.Close()
	logger.Infof("========== server stop ==========")
}

func (s *Server) lookup(fd int) *http11.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conns[fd]
}

func (s *Server) drainWake() {
	var buf [8]byte
	unix.Read(s.wakeFd, buf[:])
}

// dealListen accepts until EAGAIN under an edge-triggered listener,
// once otherwise.
func (s *Server) dealListen() {
	for {
		fd, sa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		if http11.UserCount.Load() >= MaxFD {
			s.sendBusy(fd)
			logger.Warnf("connection cap reached, rejecting client")
			return
		}
		s.addClient(fd, peerAddr(sa))
		if s.listenEvents&epoll.EventET == 0 {
			return
		}
	}
}

func (s *Server) addClient(fd int, addr string) {
	c := http11.NewConn(s.cfg.SrcDir, s.isET, s.verify)
	c.Init(fd, addr)

	s.connMu.Lock()
	s.conns[fd] = c
	s.connMu.Unlock()

	if s.cfg.TimeoutMs > 0 {
		// The entry holds only the fd and a closure over the Conn;
		// firing after the connection already died is a no-op because
		// closeConn checks map ownership.
		s.heap.Add(fd, s.timeout(), func() {
			if s.lookup(fd) == c {
				timerExpiredTotal.Inc()
			}
			s.closeConn(c)
		})
	}
	if err := s.poller.Add(fd, s.connEvents|epoll.EventIn); err != nil {
		logger.Errorf("register client fd %d: %v", fd, err)
		s.closeConn(c)
		return
	}
	acceptedTotal.Inc()
}

// sendBusy answers an over-capacity accept with a short error body.
func (s *Server) sendBusy(fd int) {
	busyRejectsTotal.Inc()
	if _, err := unix.Write(fd, []byte("Server busy!")); err != nil {
		logger.Warnf("send busy to fd %d: %v", fd, err)
	}
	unix.Close(fd)
}

// extendTime refreshes the idle deadline. Runs on the reactor only.
func (s *Server) extendTime(c *http11.Conn) {
	if s.cfg.TimeoutMs > 0 {
		s.heap.Adjust(c.Fd(), s.timeout())
	}
}

func (s *Server) timeout() time.Duration {
	return time.Duration(s.cfg.TimeoutMs) * time.Millisecond
}

// closeConn removes the fd from the poller, closes the socket, and
// drops the map entry. Exactly one caller wins; the rest observe the
// entry gone and return, which makes timer expiry and worker-side
// closes safe to race.
func (s *Server) closeConn(c *http11.Conn) {
	fd := c.Fd()
	s.connMu.Lock()
	cur, ok := s.conns[fd]
	if !ok || cur != c {
		s.connMu.Unlock()
		return
	}
	delete(s.conns, fd)
	s.connMu.Unlock()

	if err := s.poller.Del(fd); err != nil {
		logger.Debugf("deregister fd %d: %v", fd, err)
	}
	c.Close()
}

// onRead runs on a worker: drain the socket, then try to build a
// response.
func (s *Server) onRead(c *http11.Conn) {
	n, err := c.Read()
	if n <= 0 && err != unix.EAGAIN {
		s.closeConn(c)
		return
	}
	s.onProcess(c)
}

// onProcess parses and, when a response is ready, flips interest to
// writable; otherwise the connection goes back to waiting for bytes.
func (s *Server) onProcess(c *http11.Conn) {
	var interest uint32
	if c.Process() {
		responsesTotal.WithLabelValues(strconv.Itoa(c.ResponseCode())).Inc()
		interest = s.connEvents | epoll.EventOut
	} else {
		interest = s.connEvents | epoll.EventIn
	}
	if err := s.poller.Mod(c.Fd(), interest); err != nil {
		// The connection was torn down while this task ran.
		logger.Debugf("rearm fd %d: %v", c.Fd(), err)
	}
}

// onWrite runs on a worker: flush the response vector. A finished
// keep-alive exchange feeds back into onProcess for the next request;
// EAGAIN, or a flush that sent bytes but left some unsent, rearms
// writable; everything else closes.
func (s *Server) onWrite(c *http11.Conn) {
	n, err := c.Write()
	if c.ToWriteBytes() == 0 {
		if c.IsKeepAlive() {
			s.onProcess(c)
			return
		}
	} else if n > 0 || (n < 0 && err == unix.EAGAIN) {
		if err := s.poller.Mod(c.Fd(), s.connEvents|epoll.EventOut); err != nil {
			logger.Debugf("rearm fd %d: %v", c.Fd(), err)
		}
		return
	}
	s.closeConn(c)
}

//go:build linux

package server

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// openListenSocket binds and listens the accept socket: SO_REUSEADDR
// always, SO_LINGER{1,1} when a graceful close is configured, and
// non-blocking so the accept loop can drain until EAGAIN.
func openListenSocket(port int, linger bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}

	if linger {
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 1}); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("server: set linger: %w", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: set reuseaddr: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port} // INADDR_ANY
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen port %d: %w", port, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: set nonblock: %w", err)
	}
	return fd, nil
}

// peerAddr renders the accepted peer's address for logging.
func peerAddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String() + ":" + strconv.Itoa(a.Port)
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String() + ":" + strconv.Itoa(a.Port)
	default:
		return "unknown"
	}
}

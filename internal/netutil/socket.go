// low-level socket and self-pipe helpers built on golang.org/x/sys/unix.
//
// grounded on the teacher's internal/socket.go (listenSocket: raw
// syscall.Socket/Bind/Listen) and main.cpp's listener setup (SO_REUSEADDR,
// a socketpair-based self-pipe for signal delivery), rendered with the
// typed unix wrappers instead of the generic syscall package.
package netutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AcceptBacklog mirrors the original's listen(listenfd, 5) constant.
const AcceptBacklog = 5

// Listen creates, binds and listens on an IPv4 TCP socket on all
// interfaces at port, with SO_REUSEADDR set before bind the way
// main.cpp does.
func Listen(port int) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netutil: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: bind: %w", err)
	}
	if err := unix.Listen(fd, AcceptBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: set nonblocking: %w", err)
	}
	return fd, nil
}

// SelfPipe converts signals delivered to signal.Notify into bytes on a
// non-blocking pipe the reactor can multiplex alongside regular fds,
// matching main.cpp's socketpair-based sig_handler trick.
type SelfPipe struct {
	r, w int
}

// NewSelfPipe creates the pipe and arms both ends non-blocking: the write
// end so Notify never stalls a signal handler goroutine, and the read end
// so Drain's loop terminates on EAGAIN instead of blocking the reactor
// thread once the buffered bytes are consumed.
func NewSelfPipe() (*SelfPipe, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netutil: socketpair: %w", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("netutil: set nonblocking: %w", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("netutil: set nonblocking: %w", err)
	}
	return &SelfPipe{r: fds[0], w: fds[1]}, nil
}

// ReadFd is the end the reactor registers with epoll.
func (p *SelfPipe) ReadFd() int { return p.r }

// Notify writes one byte identifying sig to the pipe. Safe to call from a
// signal handler goroutine (it's just a single non-blocking write).
func (p *SelfPipe) Notify(sig byte) {
	buf := [1]byte{sig}
	unix.Write(p.w, buf[:])
}

// Drain reads everything currently buffered, passing each byte read to
// the supplied visit function.
func (p *SelfPipe) Drain(visit func(b byte)) {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
		for _, b := range buf[:n] {
			visit(b)
		}
	}
}

// Close closes both ends of the pipe.
func (p *SelfPipe) Close() {
	unix.Close(p.r)
	unix.Close(p.w)
}

// the epoll-driven reactor: one thread waiting on readiness, dispatching
// accept/read/write/timeout events, backed by a worker pool for parsing
// and a timer heap for idle-connection eviction.
//
// grounded on original_source/main.cpp's event loop and the teacher's
// internal/epoll.go + internal/socket.go (raw syscall epoll_wait/accept
// dispatch), generalized to the full accept/read/write/timeout/signal
// dispatch spec.md §4.7 describes and re-targeted at golang.org/x/sys/unix.
package reactor

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kfcemployee/webserver/internal/httpconn"
	"github.com/kfcemployee/webserver/internal/logging"
	"github.com/kfcemployee/webserver/internal/netutil"
	"github.com/kfcemployee/webserver/internal/timerheap"
	"github.com/kfcemployee/webserver/internal/workerpool"
)

// MaxFD bounds the per-fd connection table, matching main.cpp's MAX_FD.
const MaxFD = 65536

const maxEvents = 10000

// sigAlarm/sigTerm are the bytes written to the self-pipe, one per signal
// the reactor cares about. sigWake carries no signal meaning; it just
// nudges epoll_wait to return promptly when a worker has queued a close
// request.
const (
	sigAlarm byte = byte(unix.SIGALRM)
	sigTerm  byte = byte(unix.SIGTERM)
	sigWake  byte = 0
)

// Config wires together everything the reactor needs to run.
type Config struct {
	Port        int
	TimeSlot    time.Duration
	Mode        httpconn.TriggerMode
	Deps        httpconn.Deps
	Log         *logging.Logger
	WorkerPool  *workerpool.Pool
}

type connSlot struct {
	conn  *httpconn.Conn
	timer timerheap.Handle
}

// Reactor owns the listen socket, the epoll fd, the self-pipe, the timer
// heap, and a bounded table of live connections indexed by fd. The timer
// heap and connection table are mutated only from the reactor's own Run
// goroutine; worker goroutines that need a connection closed hand the fd
// to closeCh instead of touching either structure directly.
type Reactor struct {
	cfg      Config
	epfd     int
	listenFd int
	pipe     *netutil.SelfPipe
	heap     *timerheap.Heap
	table    [MaxFD]*connSlot
	userCnt  int
	stop     bool
	timedOut bool
	closeCh  chan int
}

// New creates the listen socket, the epoll instance and the self-pipe,
// and registers both fds for readiness. It does not start serving until
// Run is called.
func New(cfg Config) (*Reactor, error) {
	listenFd, err := netutil.Listen(cfg.Port)
	if err != nil {
		return nil, err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	pipe, err := netutil.NewSelfPipe()
	if err != nil {
		unix.Close(listenFd)
		unix.Close(epfd)
		return nil, err
	}

	r := &Reactor{
		cfg:      cfg,
		epfd:     epfd,
		listenFd: listenFd,
		pipe:     pipe,
		heap:     timerheap.New(),
		closeCh:  make(chan int, 1024),
	}

	listenEvents := uint32(unix.EPOLLIN)
	if cfg.Mode == httpconn.EdgeTriggered {
		listenEvents |= unix.EPOLLET
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &unix.EpollEvent{
		Events: listenEvents,
		Fd:     int32(listenFd),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register listen fd: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, pipe.ReadFd(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(pipe.ReadFd()),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register self-pipe: %w", err)
	}

	return r, nil
}

// Addr reports the port the listen socket is actually bound to, which
// matters when Config.Port is 0 and the kernel picked an ephemeral one.
func (r *Reactor) Addr() (int, error) {
	sa, err := unix.Getsockname(r.listenFd)
	if err != nil {
		return 0, err
	}
	addr, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("reactor: unexpected sockaddr type %T", sa)
	}
	return addr.Port, nil
}

// Close tears down the reactor's own fds. Per-connection fds still live
// in the table are not individually closed; callers tear the process down
// right after Close.
func (r *Reactor) Close() {
	unix.Close(r.epfd)
	unix.Close(r.listenFd)
	r.pipe.Close()
}

// Run installs signal forwarding onto the self-pipe, arms the periodic
// alarm, and blocks running the reactor loop until SIGTERM or a fatal
// epoll_wait error.
func (r *Reactor) Run() error {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGALRM, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for s := range sigCh {
			switch s {
			case syscall.SIGALRM:
				r.pipe.Notify(sigAlarm)
			case syscall.SIGTERM:
				r.pipe.Notify(sigTerm)
			}
		}
	}()

	timeSlotSecs := uint(r.cfg.TimeSlot / time.Second)
	if timeSlotSecs == 0 {
		timeSlotSecs = 1
	}
	unix.Alarm(timeSlotSecs)

	events := make([]unix.EpollEvent, maxEvents)
	for !r.stop {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if r.cfg.Log != nil {
				r.cfg.Log.Errorf("epoll_wait: %v", err)
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}

		r.drainCloseRequests()

		if r.timedOut {
			r.heap.Tick(time.Now())
			unix.Alarm(timeSlotSecs)
			r.timedOut = false
		}
	}
	return nil
}

func (r *Reactor) dispatch(ev unix.EpollEvent) {
	fd := int(ev.Fd)

	switch {
	case fd == r.listenFd:
		r.acceptLoop()
	case fd == r.pipe.ReadFd():
		r.pipe.Drain(func(b byte) {
			switch b {
			case sigAlarm:
				r.timedOut = true
			case sigTerm:
				r.stop = true
			case sigWake:
				// no-op: just here to make epoll_wait return promptly
			}
		})
	default:
		r.dispatchConn(fd, ev.Events)
	}
}

func (r *Reactor) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			break
		}

		if r.userCnt >= MaxFD || nfd >= MaxFD {
			const busy = "Internal server busy"
			unix.Write(nfd, []byte(busy))
			unix.Close(nfd)
			if r.cfg.Log != nil {
				r.cfg.Log.Errorf("internal server busy, rejected fd %d", nfd)
			}
			if r.cfg.Mode == httpconn.LevelTriggered {
				return
			}
			continue
		}

		r.registerConn(nfd)

		if r.cfg.Mode == httpconn.LevelTriggered {
			return
		}
	}
}

func (r *Reactor) registerConn(fd int) {
	events := uint32(unix.EPOLLIN | unix.EPOLLONESHOT | unix.EPOLLRDHUP)
	if r.cfg.Mode == httpconn.EdgeTriggered {
		events |= unix.EPOLLET
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}); err != nil {
		unix.Close(fd)
		return
	}

	conn := httpconn.New(fd, r.cfg.Deps)
	slot := &connSlot{conn: conn}
	slot.timer = r.heap.Push(time.Now().Add(3*r.cfg.TimeSlot), r.timeoutCallback, fd)
	r.table[fd] = slot
	r.userCnt++
}

func (r *Reactor) timeoutCallback(data any) {
	fd := data.(int)
	r.closeConn(fd)
}

func (r *Reactor) closeConn(fd int) {
	slot := r.table[fd]
	if slot == nil {
		return
	}
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	slot.conn.Close()
	r.table[fd] = nil
	r.userCnt--
	if r.cfg.Log != nil {
		r.cfg.Log.Infof("close fd %d", fd)
		r.cfg.Log.Flush()
	}
}

func (r *Reactor) dispatchConn(fd int, events uint32) {
	slot := r.table[fd]
	if slot == nil {
		return
	}

	if events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 && events&unix.EPOLLIN == 0 {
		r.heap.Remove(slot.timer)
		r.closeConn(fd)
		return
	}

	switch {
	case events&unix.EPOLLIN != 0:
		r.handleReadable(fd, slot)
	case events&unix.EPOLLOUT != 0:
		r.handleWritable(fd, slot)
	}
}

func (r *Reactor) handleReadable(fd int, slot *connSlot) {
	if !slot.conn.ReadOnce() {
		r.heap.Remove(slot.timer)
		r.closeConn(fd)
		return
	}
	r.heap.Adjust(slot.timer, time.Now().Add(3*r.cfg.TimeSlot))

	conn := slot.conn
	epfd := r.epfd
	et := r.cfg.Mode == httpconn.EdgeTriggered
	log := r.cfg.Log
	closeCh := r.closeCh
	pipe := r.pipe

	r.cfg.WorkerPool.Submit(func() {
		switch conn.Process() {
		case httpconn.OutcomeNeedMore:
			rearm(epfd, fd, unix.EPOLLIN, et)
		case httpconn.OutcomeWriteReady:
			rearm(epfd, fd, unix.EPOLLOUT, et)
		case httpconn.OutcomeError:
			if log != nil {
				log.Errorf("parse error on fd %d", fd)
			}
			select {
			case closeCh <- fd:
				pipe.Notify(sigWake)
			default:
				// close queue full; the idle timer will eventually reclaim fd
			}
		}
	})
}

func (r *Reactor) handleWritable(fd int, slot *connSlot) {
	switch slot.conn.Write() {
	case httpconn.WriteAgain:
		r.heap.Adjust(slot.timer, time.Now().Add(3*r.cfg.TimeSlot))
		rearm(r.epfd, fd, unix.EPOLLOUT, r.cfg.Mode == httpconn.EdgeTriggered)
	case httpconn.WriteDoneKeepAlive:
		r.heap.Adjust(slot.timer, time.Now().Add(3*r.cfg.TimeSlot))
		rearm(r.epfd, fd, unix.EPOLLIN, r.cfg.Mode == httpconn.EdgeTriggered)
	case httpconn.WriteDoneClose, httpconn.WriteFailed:
		r.heap.Remove(slot.timer)
		r.closeConn(fd)
	}
}

// drainCloseRequests handles every fd a worker queued via closeCh since
// the last iteration. Like every other heap and table mutation it runs on
// the Run goroutine, keeping both single-threaded despite close requests
// originating on worker goroutines.
func (r *Reactor) drainCloseRequests() {
	for {
		select {
		case fd := <-r.closeCh:
			if slot := r.table[fd]; slot != nil {
				r.heap.Remove(slot.timer)
				r.closeConn(fd)
			}
		default:
			return
		}
	}
}

func rearm(epfd, fd int, interest uint32, edgeTriggered bool) {
	events := interest | uint32(unix.EPOLLONESHOT) | uint32(unix.EPOLLRDHUP)
	if edgeTriggered {
		events |= unix.EPOLLET
	}
	unix.EpollCtl(epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

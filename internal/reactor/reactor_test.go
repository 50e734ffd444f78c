package reactor

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/kfcemployee/webserver/internal/config"
	"github.com/kfcemployee/webserver/internal/dbpool"
	"github.com/kfcemployee/webserver/internal/httpconn"
	"github.com/kfcemployee/webserver/internal/logging"
	"github.com/kfcemployee/webserver/internal/workerpool"
)

func newTestReactor(t *testing.T, docRoot string, timeSlot time.Duration) *Reactor {
	t.Helper()
	return newTestReactorMode(t, docRoot, timeSlot, httpconn.LevelTriggered)
}

func newTestReactorMode(t *testing.T, docRoot string, timeSlot time.Duration, mode httpconn.TriggerMode) *Reactor {
	t.Helper()

	logDir := t.TempDir()
	log, err := logging.New(logDir, 10000, 0)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	t.Cleanup(log.Close)

	pool, err := dbpool.Open(config.DB{
		Driver:  "sqlite3",
		DSN:     filepath.Join(t.TempDir(), "users.db"),
		MaxConn: 2,
	})
	if err != nil {
		t.Fatalf("dbpool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	users, err := httpconn.LoadUsers(context.Background(), pool)
	if err != nil {
		t.Fatalf("LoadUsers: %v", err)
	}

	workers := workerpool.New(2, 64, log)
	t.Cleanup(workers.Stop)

	r, err := New(Config{
		Port:     0,
		TimeSlot: timeSlot,
		Mode:     mode,
		Deps: httpconn.Deps{
			DocRoot: docRoot,
			Users:   users,
			Log:     log,
			Mode:    mode,
		},
		Log:        log,
		WorkerPool: workers,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// runAndStop starts r.Run on its own goroutine and arranges for SIGTERM to
// reach it (through the same self-pipe path a real shutdown uses) once the
// test is done, waiting for Run to actually return before continuing.
func runAndStop(t *testing.T, r *Reactor) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	t.Cleanup(func() {
		syscall.Kill(os.Getpid(), syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("reactor did not stop after SIGTERM")
		}
		r.Close()
	})
}

func dialReactor(t *testing.T, port int) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	for i := 0; i < 100; i++ {
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("dial reactor: %v", err)
	return nil
}

func TestReactorServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r := newTestReactor(t, dir, time.Hour)
	runAndStop(t, r)

	port, err := r.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn := dialReactor(t, port)
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if want := "HTTP/1.1 200 OK\r\n"; status != want {
		t.Fatalf("status line = %q, want %q", status, want)
	}
}

func TestReactorClosesIdleConnection(t *testing.T) {
	// unix.Alarm only accepts whole seconds, so the smallest usable time
	// slot is 1s; an idle connection is evicted after 3 slots.
	dir := t.TempDir()
	r := newTestReactor(t, dir, time.Second)
	runAndStop(t, r)

	port, err := r.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn := dialReactor(t, port)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected the idle connection to be closed by the reactor, got n=%d err=%v", n, err)
	}
}

func TestReactorServesStaticFileEdgeTriggered(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello edge"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r := newTestReactorMode(t, dir, time.Hour, httpconn.EdgeTriggered)
	runAndStop(t, r)

	port, err := r.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn := dialReactor(t, port)
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if want := "HTTP/1.1 200 OK\r\n"; status != want {
		t.Fatalf("status line = %q, want %q", status, want)
	}
}

func TestReactorRejectsBadRequest(t *testing.T) {
	dir := t.TempDir()
	r := newTestReactor(t, dir, time.Hour)
	runAndStop(t, r)

	port, err := r.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn := dialReactor(t, port)
	defer conn.Close()

	if _, err := conn.Write([]byte("DELETE / HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	// an unrecognized method maps to BadRequest, which the response
	// builder renders as 404 per http_connection.cpp's process_write.
	if want := "HTTP/1.1 404 Not Found\r\n"; status != want {
		t.Fatalf("status line = %q, want %q", status, want)
	}
}

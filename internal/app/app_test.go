package app

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/kfcemployee/webserver/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	docRoot := filepath.Join(dir, "root")
	if err := os.MkdirAll(docRoot, 0o755); err != nil {
		t.Fatalf("mkdir docroot: %v", err)
	}

	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Server.WorkerThreads = 2
	cfg.Server.MaxRequests = 64
	cfg.Server.TimeSlotSecs = 3600
	cfg.Server.LogDir = filepath.Join(dir, "logs")
	cfg.Server.LogQueueSize = 0
	cfg.Server.DocRoot = docRoot
	cfg.DB.Driver = "sqlite3"
	cfg.DB.DSN = filepath.Join(dir, "app.db")
	cfg.DB.MaxConn = 2
	return cfg
}

func TestNewWiresEveryComponent(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Shutdown()

	if srv.Log == nil || srv.DB == nil || srv.Users == nil || srv.Workers == nil || srv.Reactor == nil {
		t.Fatal("New left a component nil")
	}

	if _, err := srv.Reactor.Addr(); err != nil {
		t.Fatalf("reactor did not bind a listen socket: %v", err)
	}
}

func TestNewFailsOnBadDBDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.Driver = "not-a-real-driver"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected New to fail for an unregistered sql driver")
	}
}

func TestRunStopsOnSIGTERM(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	// give the reactor loop a moment to start blocking in epoll_wait and
	// register its signal channel before the signal is sent
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(os.Getpid(), syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	srv.Shutdown()
}

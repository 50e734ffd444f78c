// wiring layer: turns a loaded config into a runnable Server, owning every
// long-lived handle (reactor, worker pool, logger, DB pool, user store) so
// cmd/webserver stays a thin CLI shim.
//
// grounded on original_source/main.cpp's bootstrap sequence (log init, DB
// pool init, thread pool, user table load, listen socket, epoll) and the
// teacher's server/server.go Server type, generalized from that file's
// router-registration shape into a fixed set of injected handles per
// SPEC_FULL.md's "Reorganize as injected handles" design note.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kfcemployee/webserver/internal/config"
	"github.com/kfcemployee/webserver/internal/dbpool"
	"github.com/kfcemployee/webserver/internal/httpconn"
	"github.com/kfcemployee/webserver/internal/logging"
	"github.com/kfcemployee/webserver/internal/reactor"
	"github.com/kfcemployee/webserver/internal/workerpool"
)

// Server owns every component the reactor loop needs, wired together once
// at startup. It replaces the original's collection of file-scope globals
// (timer_manager, connPool, pool, users, epollfd) with explicit fields.
type Server struct {
	cfg     config.Config
	Log     *logging.Logger
	DB      *dbpool.Pool
	Users   *httpconn.UserStore
	Workers *workerpool.Pool
	Reactor *reactor.Reactor
}

// New builds every component in the order main.cpp initializes them: async
// logger first (so every later failure can be logged), then the DB pool,
// then the worker pool, then the in-memory user table seeded from it, and
// finally the reactor itself, which binds the listen socket.
func New(cfg config.Config) (*Server, error) {
	log, err := logging.New(cfg.Server.LogDir, cfg.Server.LogMaxLines, cfg.Server.LogQueueSize)
	if err != nil {
		return nil, fmt.Errorf("app: logger init: %w", err)
	}

	db, err := dbpool.Open(cfg.DB)
	if err != nil {
		log.Errorf("db pool init failed: %v", err)
		log.Close()
		return nil, fmt.Errorf("app: db pool init: %w", err)
	}

	workers := workerpool.New(cfg.Server.WorkerThreads, cfg.Server.MaxRequests, log)

	users, err := httpconn.LoadUsers(context.Background(), db)
	if err != nil {
		log.Errorf("user table load failed: %v", err)
		workers.Stop()
		db.Close()
		log.Close()
		return nil, fmt.Errorf("app: load users: %w", err)
	}

	mode := httpconn.LevelTriggered
	if cfg.Server.TriggerMode == "edge" {
		mode = httpconn.EdgeTriggered
	}

	rct, err := reactor.New(reactor.Config{
		Port:     cfg.Server.Port,
		TimeSlot: time.Duration(cfg.Server.TimeSlotSecs) * time.Second,
		Mode:     mode,
		Deps: httpconn.Deps{
			DocRoot: cfg.Server.DocRoot,
			Users:   users,
			Log:     log,
			Mode:    mode,
		},
		Log:        log,
		WorkerPool: workers,
	})
	if err != nil {
		log.Errorf("reactor init failed: %v", err)
		workers.Stop()
		db.Close()
		log.Close()
		return nil, fmt.Errorf("app: reactor init: %w", err)
	}

	return &Server{
		cfg:     cfg,
		Log:     log,
		DB:      db,
		Users:   users,
		Workers: workers,
		Reactor: rct,
	}, nil
}

// Run blocks serving requests until the reactor stops (SIGTERM or a fatal
// epoll error), matching main.cpp's unconditional epoll_wait loop.
func (s *Server) Run() error {
	return s.Reactor.Run()
}

// Shutdown tears every component down in reverse construction order.
func (s *Server) Shutdown() {
	s.Reactor.Close()
	s.Workers.Stop()
	s.DB.Close()
	s.Log.Close()
}

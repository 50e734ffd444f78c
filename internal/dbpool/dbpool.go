// bounded database connection pool, counting-semaphore gated lease/return.
//
// grounded on original_source/pool/connection_pool.h + .cpp: pre-opens
// max_conn connections at startup, a semaphore initialized to max_conn
// gates Lease, and a scoped handle (connection_RAII there, Conn.Release
// here) returns the connection on every exit path.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kfcemployee/webserver/internal/config"
)

// Pool wraps a database/sql.DB with an explicit counting semaphore so the
// lease/release contract and its "queue.size + outstanding == max_conn"
// invariant are visible in the API, not hidden inside database/sql's own
// internal pool.
type Pool struct {
	db      *sql.DB
	sem     chan struct{}
	maxConn int
}

// Open pre-opens cfg.MaxConn connections against cfg.Driver/cfg.DSN and
// initializes the semaphore to that same count. A failure to open any of
// the eager connections is treated as fatal at startup, matching the
// original's mysql_real_connect failure path (exit(1)).
func Open(cfg config.DB) (*Pool, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("dbpool: open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxConn)
	db.SetMaxIdleConns(cfg.MaxConn)

	p := &Pool{
		db:      db,
		sem:     make(chan struct{}, cfg.MaxConn),
		maxConn: cfg.MaxConn,
	}

	conns := make([]*sql.Conn, 0, cfg.MaxConn)
	for i := 0; i < cfg.MaxConn; i++ {
		c, err := db.Conn(context.Background())
		if err != nil {
			for _, held := range conns {
				held.Close()
			}
			db.Close()
			return nil, fmt.Errorf("dbpool: pre-open connection %d/%d: %w", i+1, cfg.MaxConn, err)
		}
		conns = append(conns, c)
	}
	for _, c := range conns {
		c.Close() // return each probe connection to database/sql's own idle pool
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return p, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS user (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("dbpool: ensure schema: %w", err)
	}
	return nil
}

// Conn is a scoped lease: the connection underneath is returned to the
// pool exactly once, on Release, regardless of which code path triggers
// it — the Go stand-in for the original's destructor-based RAII.
type Conn struct {
	*sql.Conn
	pool     *Pool
	released bool
}

// Lease performs P on the semaphore then hands back a leased connection.
// It blocks until a slot is free or ctx is done.
func (p *Pool) Lease(ctx context.Context) (*Conn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c, err := p.db.Conn(ctx)
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("dbpool: lease: %w", err)
	}
	return &Conn{Conn: c, pool: p}, nil
}

// Release performs V on the semaphore and returns the underlying
// connection to database/sql's pool. Calling Release more than once is a
// no-op, matching the original's idempotent destructor path.
func (c *Conn) Release() {
	if c.released {
		return
	}
	c.released = true
	c.Conn.Close()
	<-c.pool.sem
}

// Outstanding reports the number of currently leased connections.
func (p *Pool) Outstanding() int { return len(p.sem) }

// MaxConn reports the configured pool size.
func (p *Pool) MaxConn() int { return p.maxConn }

// Close destroys the pool, closing the underlying database/sql.DB. Any
// leases still outstanding at call time are not forcibly reclaimed.
func (p *Pool) Close() error {
	return p.db.Close()
}

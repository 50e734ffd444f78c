package httpconn

import (
	"context"
	"sync"

	"github.com/kfcemployee/webserver/internal/dbpool"
)

// UserStore mirrors the original's global std::map<string,string> users
// guarded by a plain mutex, backed by the leased DB pool for the
// registration path only — login never touches the database.
type UserStore struct {
	db *dbpool.Pool
	mu sync.Mutex
	m  map[string]string
}

// LoadUsers seeds the in-memory map from the user table, the Go analog of
// init_mysql_result.
func LoadUsers(ctx context.Context, db *dbpool.Pool) (*UserStore, error) {
	u := &UserStore{db: db, m: make(map[string]string)}

	conn, err := db.Lease(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.QueryContext(ctx, "SELECT username, password FROM user")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, password string
		if err := rows.Scan(&name, &password); err != nil {
			return nil, err
		}
		u.m[name] = password
	}
	return u, rows.Err()
}

// Get reports the stored password for name, if any.
func (u *UserStore) Get(name string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	pw, ok := u.m[name]
	return pw, ok
}

// Login reports whether name/password matches a stored account.
func (u *UserStore) Login(name, password string) bool {
	stored, ok := u.Get(name)
	return ok && stored == password
}

// Register inserts a new user if the name is not already taken. The DB
// lease is acquired before the users mutex (DESIGN.md's resolved ordering
// for this path) so waiting for a free DB handle never holds up login
// lookups, which never touch the pool at all; the insert itself runs
// under the mutex.
func (u *UserStore) Register(ctx context.Context, name, password string) (bool, error) {
	if _, exists := u.Get(name); exists {
		return false, nil
	}

	conn, err := u.db.Lease(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.m[name]; exists {
		return false, nil
	}

	_, err = conn.ExecContext(ctx, "INSERT INTO user(username, password) VALUES(?, ?)", name, password)
	if err != nil {
		return false, err
	}
	u.m[name] = password
	return true, nil
}

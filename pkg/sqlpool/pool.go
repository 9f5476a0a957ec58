// Package sqlpool keeps a fixed set of database handles warm for the
// worker pool. Handles are dedicated *sql.Conn sessions checked out
// under a counting semaphore, so a worker never shares a session and
// never waits longer than the pool is genuinely exhausted.
package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/semaphore"

	"github.com/MgJun-ux/MyWebServer/pkg/logger"
)

// Config carries the connection parameters for the auth database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Size     int
}

// Pool is a fixed-size FIFO of database handles.
//
// Invariant: handles lent out + handles in the free list equals the
// pool size established at Open.
type Pool struct {
	db   *sql.DB
	sem  *semaphore.Weighted
	size int

	mu    sync.Mutex
	free  []*sql.Conn
	close sync.Once
}

// Open connects size handles eagerly. Handles that fail to connect are
// logged and discarded, so the pool may end up smaller than asked; it
// is an error for every handle to fail.
func Open(cfg Config) (*Pool, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	mc.DBName = cfg.DBName
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("sqlpool: config: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.Size)
	db.SetMaxIdleConns(cfg.Size)
	return warm(db, cfg.Size)
}

// NewWithDB builds a pool over an already-open database. Used by tests
// and by callers that manage the driver themselves.
func NewWithDB(db *sql.DB, size int) (*Pool, error) {
	return warm(db, size)
}

func warm(db *sql.DB, size int) (*Pool, error) {
	p := &Pool{db: db}
	for i := 0; i < size; i++ {
		conn, err := db.Conn(context.Background())
		if err != nil {
			logger.Errorf("sql connect %d/%d failed: %v", i+1, size, err)
			continue
		}
		p.free = append(p.free, conn)
	}
	if len(p.free) == 0 {
		db.Close()
		return nil, fmt.Errorf("sqlpool: no handle could connect")
	}
	p.size = len(p.free)
	p.sem = semaphore.NewWeighted(int64(p.size))
	sqlPoolSize.Set(float64(p.size))
	return p, nil
}

// Size reports how many handles the pool established.
func (p *Pool) Size() int { return p.size }

// FreeCount reports the handles currently in the free list.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Get checks a handle out, waiting until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (*sql.Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	conn := p.free[0]
	p.free = p.free[1:]
	p.mu.Unlock()
	sqlPoolInUse.Inc()
	return conn, nil
}

// Release returns a handle to the free list.
func (p *Pool) Release(conn *sql.Conn) {
	p.mu.Lock()
	p.free = append(p.free, conn)
	p.mu.Unlock()
	sqlPoolInUse.Dec()
	p.sem.Release(1)
}

// With checks a handle out for the duration of fn, returning it on
// every exit path.
func (p *Pool) With(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Close waits for all lent handles to come back, then closes each one
// and the underlying database. Safe to call more than once.
func (p *Pool) Close() {
	p.close.Do(func() {
		// Claim every permit so no handle is still lent out.
		p.sem.Acquire(context.Background(), int64(p.size))
		p.mu.Lock()
		for _, conn := range p.free {
			conn.Close()
		}
		p.free = nil
		p.mu.Unlock()
		p.db.Close()
	})
}

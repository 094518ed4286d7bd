package connpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/danthegoodman1/scanbench/metrics"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/puddle"
)

var (
	logger = gologger.NewLogger()

	ErrPoolClosed  = errors.New("connection pool is closed")
	ErrInvalidSize = errors.New("pool size must be positive")
)

type (
	// Conn is the slice of *pgx.Conn the scanner needs.
	Conn interface {
		Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
		Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
		Close(ctx context.Context) error
		IsClosed() bool
	}

	Connector interface {
		Connect(ctx context.Context) (Conn, error)
	}

	ConnectorFunc func(ctx context.Context) (Conn, error)

	// Pool is a bounded set of live connections. Acquire blocks while every
	// connection is leased.
	Pool struct {
		pool *puddle.Pool
		size int32
	}

	// Lease is a checked-out connection. Release it exactly once, extra calls are no-ops.
	Lease struct {
		res  *puddle.Resource
		once sync.Once
	}

	Stat struct {
		Acquired     int32
		Total        int32
		Max          int32
		AcquireCount int64
	}
)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// New creates a pool that holds at most size connections, opened lazily through connector.
func New(connector Connector, size int32) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	constructor := func(ctx context.Context) (interface{}, error) {
		conn, err := connector.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("error in connector.Connect: %w", err)
		}
		return conn, nil
	}
	destructor := func(res interface{}) {
		if err := res.(Conn).Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("error closing pooled connection")
		}
	}
	return &Pool{
		pool: puddle.NewPool(constructor, destructor, size),
		size: size,
	}, nil
}

// Acquire blocks until a connection is free, ctx is done, or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	res, err := p.pool.Acquire(ctx)
	if errors.Is(err, puddle.ErrClosedPool) {
		return nil, ErrPoolClosed
	}
	if err != nil {
		return nil, err
	}
	metrics.PoolAcquired.Inc()
	return &Lease{res: res}, nil
}

// WithConn runs f with a leased connection and returns it to the pool on every
// exit path, panics included.
func (p *Pool) WithConn(ctx context.Context, f func(ctx context.Context, conn Conn) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring connection: %w", err)
	}
	defer lease.Release()
	return f(ctx, lease.Conn())
}

func (p *Pool) Size() int32 {
	return p.size
}

func (p *Pool) Stat() Stat {
	s := p.pool.Stat()
	return Stat{
		Acquired:     s.AcquiredResources(),
		Total:        s.TotalResources(),
		Max:          s.MaxResources(),
		AcquireCount: s.AcquireCount(),
	}
}

// Close rejects further Acquire calls and blocks until every lease is released
// and its connection closed.
func (p *Pool) Close() {
	p.pool.Close()
}

func (l *Lease) Conn() Conn {
	return l.res.Value().(Conn)
}

// Release hands the connection back. A connection that reports itself closed is
// destroyed so the pool can replace it.
func (l *Lease) Release() {
	l.once.Do(func() {
		metrics.PoolAcquired.Dec()
		if l.Conn().IsClosed() {
			l.res.Destroy()
			return
		}
		l.res.Release()
	})
}

package connpool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danthegoodman1/scanbench/connpool"
	"github.com/danthegoodman1/scanbench/pgtest"
)

func newTestPool(t *testing.T, size int32) (*connpool.Pool, *pgtest.Connector) {
	connector := &pgtest.Connector{Table: pgtest.NewTable(1)}
	pool, err := connpool.New(connector, size)
	if err != nil {
		t.Fatal(err)
	}
	return pool, connector
}

func TestPoolCapacity(t *testing.T) {
	for workers := int32(1); workers <= 8; workers++ {
		pool, _ := newTestPool(t, workers+1)

		var leases []*connpool.Lease
		for i := int32(0); i < workers+1; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			lease, err := pool.Acquire(ctx)
			cancel()
			if err != nil {
				t.Fatalf("workers=%d acquisition %d blocked: %s", workers, i+1, err)
			}
			leases = append(leases, lease)
		}

		acquired := make(chan *connpool.Lease, 1)
		go func() {
			lease, err := pool.Acquire(context.Background())
			if err != nil {
				close(acquired)
				return
			}
			acquired <- lease
		}()

		select {
		case <-acquired:
			t.Fatalf("workers=%d: acquisition %d did not block", workers, workers+2)
		case <-time.After(50 * time.Millisecond):
		}

		leases[0].Release()
		select {
		case lease, ok := <-acquired:
			if !ok {
				t.Fatal("blocked acquisition failed after release")
			}
			leases[0] = lease
		case <-time.After(time.Second):
			t.Fatalf("workers=%d: acquisition still blocked after a release", workers)
		}

		for _, l := range leases {
			l.Release()
		}
		pool.Close()
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}

func TestAcquireClosedPool(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	pool.Close()
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, connpool.ErrPoolClosed) {
		t.Fatalf("got %v", err)
	}
}

func TestWithConnReleasesOnError(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	defer pool.Close()

	boom := errors.New("boom")
	err := pool.WithConn(context.Background(), func(ctx context.Context, conn connpool.Conn) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if pool.Stat().Acquired != 0 {
		t.Fatal("connection still leased after error")
	}

	// the single slot must be usable again
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.WithConn(ctx, func(ctx context.Context, conn connpool.Conn) error { return nil }); err != nil {
		t.Fatal(err)
	}
}

func TestWithConnReleasesOnPanic(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	defer pool.Close()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		_ = pool.WithConn(context.Background(), func(ctx context.Context, conn connpool.Conn) error {
			panic("decode went sideways")
		})
	}()

	if pool.Stat().Acquired != 0 {
		t.Fatal("connection still leased after panic")
	}
}

func TestReleaseIsIdempotentAndDestroysClosed(t *testing.T) {
	pool, connector := newTestPool(t, 1)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_ = lease.Conn().Close(context.Background())
	lease.Release()
	lease.Release()

	// the closed connection is destroyed, so the next lease needs a fresh connect
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err = pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	lease.Release()
	if connector.Connects() != 2 {
		t.Fatalf("got %d connects, want 2", connector.Connects())
	}
}

func TestConnectFailure(t *testing.T) {
	refused := errors.New("connection refused")
	pool, err := connpool.New(&failingConnector{err: refused}, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, refused) {
		t.Fatalf("got %v", err)
	}
	if pool.Stat().Acquired != 0 {
		t.Fatal("failed connect left a lease behind")
	}
}

func TestInvalidSize(t *testing.T) {
	if _, err := connpool.New(&failingConnector{}, 0); !errors.Is(err, connpool.ErrInvalidSize) {
		t.Fatalf("got %v", err)
	}
}

type failingConnector struct {
	err error
}

func (c *failingConnector) Connect(ctx context.Context) (connpool.Conn, error) {
	return nil, c.err
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/danthegoodman1/scanbench/column"
	"github.com/danthegoodman1/scanbench/connpool"
	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/danthegoodman1/scanbench/partitioner"
	"github.com/danthegoodman1/scanbench/scanner"
	"github.com/danthegoodman1/scanbench/utils"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

// MaxWorkers keeps Workers+1 inside the connection pool's int32 size.
const MaxWorkers = math.MaxInt32 - 1

var (
	logger = gologger.NewLogger()

	ErrScanPanic = errors.New("partition scan panicked")
)

type (
	Config struct {
		Table    string
		IDColumn string
		// TotalRows is the highest id to scan, ids start at 1
		TotalRows int64
		// Workers bounds concurrent partition scans. Zero means runtime.NumCPU()
		Workers   int64
		FetchSize int
		// ProjectRowID selects ctid first so decode errors can name the row
		ProjectRowID bool
	}

	Runner struct {
		cfg     Config
		pool    *connpool.Pool
		scanner *scanner.Scanner
	}
)

// DefaultConfig reads the run shape from the environment.
func DefaultConfig() Config {
	return Config{
		Table:        utils.BENCH_TABLE,
		IDColumn:     scanner.DefaultIDColumn,
		TotalRows:    utils.BENCH_ROWS,
		Workers:      utils.BENCH_THREADS,
		FetchSize:    int(utils.FETCH_BATCH_SIZE),
		ProjectRowID: true,
	}
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = int64(runtime.NumCPU())
	}
	if c.FetchSize == 0 {
		c.FetchSize = scanner.DefaultFetchSize
	}
	if c.IDColumn == "" {
		c.IDColumn = scanner.DefaultIDColumn
	}
}

// Validate checks the config without touching the database.
func (c Config) Validate() error {
	c.applyDefaults()
	if c.Table == "" {
		return fmt.Errorf("%w: table name is required", partitioner.ErrInvalidConfig)
	}
	if c.FetchSize < 0 {
		return fmt.Errorf("%w: fetch size must be positive, got %d", partitioner.ErrInvalidConfig, c.FetchSize)
	}
	if c.Workers > MaxWorkers {
		return fmt.Errorf("%w: at most %d workers, got %d", partitioner.ErrInvalidConfig, MaxWorkers, c.Workers)
	}
	return partitioner.Check(c.TotalRows, c.Workers)
}

func New(cfg Config, pool *connpool.Pool, decoder column.Decoder) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:  cfg,
		pool: pool,
		scanner: scanner.New(pool, decoder, scanner.Config{
			Table:     cfg.Table,
			IDColumn:  cfg.IDColumn,
			FetchSize: cfg.FetchSize,
		}),
	}
}

// Execute opens a pool of Workers+1 connections, reserves one of them for the
// metadata query for the whole run, and runs the scan.
func Execute(ctx context.Context, cfg Config, connector connpool.Connector) (*Summary, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := connpool.New(connector, int32(cfg.Workers)+1)
	if err != nil {
		return nil, fmt.Errorf("error in connpool.New: %w", err)
	}
	defer pool.Close()
	zerolog.Ctx(ctx).Debug().Int32("poolSize", pool.Size()).Msg("created connection pool")

	meta, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error acquiring metadata connection: %w", err)
	}
	defer meta.Release()

	return New(cfg, pool, column.NewDispatcher()).Run(ctx, meta.Conn())
}

// Run plans the partitions, loads the column list through meta and scans every
// partition on at most Workers goroutines. A failed partition is reported in the
// summary and never stops its siblings. Run itself only fails on bad config or
// when the columns cannot be loaded.
func (r *Runner) Run(ctx context.Context, meta connpool.Conn) (*Summary, error) {
	runID := utils.GenKSortedID("run_")
	ctx = gologger.WithRunID(ctx, logger, runID)
	logger := zerolog.Ctx(ctx)

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	parts, err := partitioner.Plan(r.cfg.TotalRows, r.cfg.Workers)
	if err != nil {
		return nil, err
	}

	cols, err := column.LoadDescriptors(ctx, meta, r.cfg.Table, r.cfg.ProjectRowID)
	if err != nil {
		return nil, fmt.Errorf("error loading column metadata: %w", err)
	}
	logger.Info().Str("table", r.cfg.Table).Int("columns", len(cols)).Int("partitions", len(parts)).Int64("workers", r.cfg.Workers).Int64("rows", r.cfg.TotalRows).Msg("starting scan")

	started := time.Now()
	outcomes, err := r.scanAll(ctx, parts, cols)
	if err != nil {
		return nil, err
	}

	s := summarize(runID, r.cfg, outcomes, started, time.Since(started))
	logger.Info().Int64("rowsScanned", s.RowsScanned).Int("fatalPartitions", len(s.Failures)).Float64("rowsPerSecond", s.RowsPerSecond).Dur("elapsed", s.Elapsed).Msg("scan finished")
	return s, nil
}

func (r *Runner) scanAll(ctx context.Context, parts []partitioner.Partition, cols []column.Descriptor) ([]scanner.Outcome, error) {
	workers, err := ants.NewPool(int(r.cfg.Workers), ants.WithPanicHandler(func(v any) {
		logger.Error().Interface("panic", v).Msg("scan worker panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("error in ants.NewPool: %w", err)
	}
	defer workers.Release()

	// each task writes only its own slot, nothing is merged until Wait returns
	outcomes := make([]scanner.Outcome, len(parts))
	var wg sync.WaitGroup
	for i, p := range parts {
		i, p := i, p
		wg.Add(1)
		err := workers.Submit(func() {
			defer wg.Done()
			outcomes[i] = r.scanPartition(ctx, p, slices.Clone(cols))
		})
		if err != nil {
			wg.Done()
			outcomes[i] = scanner.Outcome{
				Partition: p,
				Err:       fmt.Errorf("%w for %s: error submitting scan: %w", scanner.ErrPartitionSetup, p, err),
			}
			scanner.Record(&outcomes[i])
		}
	}
	wg.Wait()
	return outcomes, nil
}

func (r *Runner) scanPartition(ctx context.Context, p partitioner.Partition, cols []column.Descriptor) (out scanner.Outcome) {
	defer func() {
		if v := recover(); v != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", v).Str("partition", p.String()).Msg("partition scan panicked")
			out = scanner.Outcome{
				Partition: p,
				Err:       fmt.Errorf("%w for %s: %v", ErrScanPanic, p, v),
			}
			scanner.Record(&out)
		}
	}()
	return r.scanner.Scan(ctx, p, cols)
}

package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/danthegoodman1/scanbench/migrations"
	"github.com/danthegoodman1/scanbench/utils"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const DefaultBatchSize = 10_000

var (
	logger = gologger.NewLogger()

	ErrInvalidOptions = utils.PermError("invalid provisioning options")
)

type Options struct {
	Table       string
	Rows        int64
	TextColumns int
	// BatchSize is the number of ids inserted per transaction, default 10000
	BatchSize int64
}

// Provision creates the bench table if needed and seeds it up to opts.Rows.
func Provision(ctx context.Context, dsn string, pool *pgxpool.Pool, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	applied, err := migrations.RunMigrations(dsn, migrations.TableMigrations(opts.Table, opts.TextColumns))
	if err != nil {
		return fmt.Errorf("error in migrations.RunMigrations: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Int("applied", applied).Str("table", opts.Table).Msg("ran table migrations")

	return Seed(ctx, pool, opts)
}

// Seed inserts ids after the current max(id) up to opts.Rows in BatchSize
// transactions. A table that already holds opts.Rows ids is left alone.
func Seed(ctx context.Context, pool *pgxpool.Pool, opts Options) error {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)
	if err := opts.validate(); err != nil {
		return err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var maxID int64
	err := utils.ReliableExec(ctx, pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, "SELECT coalesce(max(id), 0) FROM "+sanitizeTable(opts.Table)).Scan(&maxID)
	})
	if err != nil {
		return fmt.Errorf("error reading max id: %w", err)
	}
	if maxID >= opts.Rows {
		logger.Info().Int64("maxID", maxID).Int64("rows", opts.Rows).Msg("table already seeded, skipping")
		return nil
	}

	insert := SeedStatement(opts.Table, opts.TextColumns)
	s := time.Now()
	for _, b := range Batches(maxID+1, opts.Rows, opts.BatchSize) {
		err := crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, insert, b[0], b[1])
			return err
		})
		if err != nil {
			return fmt.Errorf("error seeding ids %d..%d: %w", b[0], b[1], err)
		}
		logger.Debug().Int64("from", b[0]).Int64("to", b[1]).Msg("seeded batch")
	}
	logger.Info().Int64("from", maxID+1).Int64("to", opts.Rows).Str("durationHuman", time.Since(s).String()).Msg("seeded table")
	return nil
}

func (o Options) validate() error {
	if o.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidOptions)
	}
	if o.Rows <= 0 {
		return fmt.Errorf("%w: rows must be positive, got %d", ErrInvalidOptions, o.Rows)
	}
	if o.TextColumns < 0 {
		return fmt.Errorf("%w: text column count must not be negative, got %d", ErrInvalidOptions, o.TextColumns)
	}
	return nil
}

// Batches splits the inclusive id range [from, to] into [start, end] pairs of
// at most size ids.
func Batches(from, to, size int64) [][2]int64 {
	var out [][2]int64
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		out = append(out, [2]int64{start, end})
	}
	return out
}

// SeedStatement inserts ids $1..$2 with deterministic values for every column
// the table migration creates.
func SeedStatement(table string, textColumns int) string {
	cols := []string{"id"}
	vals := []string{"g"}
	for i := 1; i <= textColumns; i++ {
		cols = append(cols, fmt.Sprintf("col%d", i))
		vals = append(vals, fmt.Sprintf("'row' || g || 'col%d'", i))
	}
	cols = append(cols, "col_bytes", "col_numeric", "col_int", "col_ts", "col_xml", "col_flag")
	vals = append(vals,
		"convert_to('row' || g, 'UTF8')",
		"g * 1.2500",
		"g * 10",
		"timestamptz '2024-01-01 00:00:00+00' + g * interval '1 second'",
		"xmlparse(content '<row id=\"' || g || '\"/>')",
		"g % 2 = 0",
	)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM generate_series($1::bigint, $2::bigint) AS g ON CONFLICT (id) DO NOTHING",
		sanitizeTable(table), strings.Join(cols, ", "), strings.Join(vals, ", "))
}

func sanitizeTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danthegoodman1/scanbench/column"
	"github.com/danthegoodman1/scanbench/connpool"
	"github.com/danthegoodman1/scanbench/metrics"
	"github.com/danthegoodman1/scanbench/partitioner"
	"github.com/danthegoodman1/scanbench/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultFetchSize = 200
	DefaultIDColumn  = "id"
)

var ErrPartitionSetup = errors.New("partition setup failed")

type (
	Config struct {
		Table string
		// IDColumn is the integer key the partitions are ranged over, default "id"
		IDColumn string
		// FetchSize is the number of rows pulled per FETCH round trip, default 200
		FetchSize int
	}

	// Outcome is what a single partition scan produced. It is only ever written by
	// the goroutine that ran the scan.
	Outcome struct {
		Partition   partitioner.Partition
		RowsScanned int64
		// DecodeFailures counts cells per column that did not materialize
		DecodeFailures map[string]int64
		// UnhandledTypes counts cells per column skipped for lack of a decoder
		UnhandledTypes map[string]int64
		Fetches        int
		Duration       time.Duration
		// Err is set when the partition could not be scanned at all, or stopped early
		Err error
	}

	Scanner struct {
		pool      *connpool.Pool
		decoder   column.Decoder
		table     string
		idColumn  string
		fetchSize int
		cursor    string
	}

	partitionState struct {
		out    *Outcome
		logger zerolog.Logger
		warned map[string]bool
	}
)

func New(pool *connpool.Pool, decoder column.Decoder, cfg Config) *Scanner {
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = DefaultFetchSize
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = DefaultIDColumn
	}
	return &Scanner{
		pool:      pool,
		decoder:   decoder,
		table:     cfg.Table,
		idColumn:  cfg.IDColumn,
		fetchSize: cfg.FetchSize,
		cursor:    pgx.Identifier{utils.GenCursorName("scan_")}.Sanitize(),
	}
}

func (o Outcome) Fatal() bool {
	return o.Err != nil
}

// Scan reads every row of partition p, decoding each non-null cell by the tag of
// its column. Decode problems are counted and logged, only failures to get rows
// at all end up in Outcome.Err.
func (s *Scanner) Scan(ctx context.Context, p partitioner.Partition, cols []column.Descriptor) Outcome {
	start := time.Now()
	out := Outcome{
		Partition:      p,
		DecodeFailures: make(map[string]int64),
		UnhandledTypes: make(map[string]int64),
	}
	st := &partitionState{
		out:    &out,
		logger: zerolog.Ctx(ctx).With().Int64("startID", p.StartID).Int64("endID", p.EndID()).Logger(),
		warned: make(map[string]bool),
	}
	st.logger.Debug().Msg("scanning partition")

	err := s.pool.WithConn(ctx, func(ctx context.Context, conn connpool.Conn) error {
		return s.scanWithConn(ctx, conn, p, cols, st)
	})
	out.Duration = time.Since(start)
	defer Record(&out)

	if err != nil {
		out.Err = fmt.Errorf("%w for %s: %w", ErrPartitionSetup, p, err)
		e := st.logger.Error().Err(err).Int64("rowsScanned", out.RowsScanned)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			e = e.Str("sqlState", pgErr.Code)
		}
		e.Msg("partition scan failed")
		return out
	}

	st.logger.Debug().Int64("rowsScanned", out.RowsScanned).Int("fetches", out.Fetches).Dur("duration", out.Duration).Msg("finished partition")
	return out
}

func (s *Scanner) scanWithConn(ctx context.Context, conn connpool.Conn, p partitioner.Partition, cols []column.Descriptor, st *partitionState) (err error) {
	if _, err := conn.Exec(ctx, "BEGIN READ ONLY"); err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		v := recover()
		if err == nil && v == nil {
			return
		}
		if _, rbErr := conn.Exec(context.Background(), "ROLLBACK"); rbErr != nil {
			st.logger.Debug().Err(rbErr).Msg("error rolling back scan transaction")
		}
		if v != nil {
			panic(v)
		}
	}()

	declare := "DECLARE " + s.cursor + " NO SCROLL CURSOR FOR " + BuildProjection(s.table, s.idColumn, cols)
	if _, err := conn.Exec(ctx, declare, p.StartID, p.EndID()); err != nil {
		return fmt.Errorf("error declaring cursor: %w", err)
	}

	fetch := fmt.Sprintf("FETCH %d FROM %s", s.fetchSize, s.cursor)
	for {
		n, err := s.fetchBatch(ctx, conn, fetch, cols, st)
		st.out.Fetches++
		if err != nil {
			return err
		}
		if n < s.fetchSize {
			break
		}
	}

	if _, err := conn.Exec(ctx, "CLOSE "+s.cursor); err != nil {
		return fmt.Errorf("error closing cursor: %w", err)
	}
	if _, err := conn.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("error committing scan transaction: %w", err)
	}
	return nil
}

// fetchBatch does one round trip and returns how many rows came back.
func (s *Scanner) fetchBatch(ctx context.Context, conn connpool.Conn, sql string, cols []column.Descriptor, st *partitionState) (int, error) {
	start := time.Now()
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("error in FETCH: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	n := 0
	for rows.Next() {
		n++
		s.decodeRow(rows.RawValues(), fields, cols, st)
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("error reading FETCH results: %w", err)
	}
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	return n, nil
}

func (s *Scanner) decodeRow(raw [][]byte, fields []pgproto3.FieldDescription, cols []column.Descriptor, st *partitionState) {
	st.out.RowsScanned++
	rowID := ""
	for i, col := range cols {
		if i >= len(raw) {
			break
		}
		// NULLs never reach the decoder
		if raw[i] == nil {
			continue
		}
		v := column.RawValue{Bytes: raw[i]}
		if i < len(fields) {
			v.Format = fields[i].Format
			v.OID = fields[i].DataTypeOID
		}

		decoded, err := s.decoder.Decode(col.Tag, v)
		var unhandled *column.UnhandledTypeError
		switch {
		case errors.As(err, &unhandled):
			st.unhandled(col)
		case err != nil:
			st.decodeFailed(col, rowID, err)
		case col.Tag == column.TypeRowID && col.Name == column.RowIDColumn:
			rowID, _ = decoded.(string)
		}
	}
}

func (st *partitionState) unhandled(col column.Descriptor) {
	st.out.UnhandledTypes[col.Name]++
	if st.warned[col.Name] {
		return
	}
	st.warned[col.Name] = true
	st.logger.Warn().Str("column", col.Name).Int("position", col.Position).Str("declaredType", col.DeclaredType).Msg("unhandled column type, skipping its cells")
}

func (st *partitionState) decodeFailed(col column.Descriptor, rowID string, err error) {
	st.out.DecodeFailures[col.Name]++
	e := st.logger.Warn().Err(err).Str("column", col.Name).Int("position", col.Position).Str("tag", col.Tag.String())
	if rowID != "" {
		e = e.Str("rowID", rowID)
	} else {
		e = e.Int64("rowOrdinal", st.out.RowsScanned)
	}
	e.Msg("error decoding cell")
}

// Record adds a finished partition to the scan metrics. Scan records its own
// outcomes, callers only need it for partitions Scan never returned from.
func Record(out *Outcome) {
	status := metrics.StatusOK
	if out.Fatal() {
		status = metrics.StatusFatal
	}
	metrics.PartitionsTotal.WithLabelValues(status).Inc()
	metrics.RowsScanned.Add(float64(out.RowsScanned))
	metrics.PartitionDuration.Observe(out.Duration.Seconds())
	for col, n := range out.DecodeFailures {
		metrics.DecodeFailures.WithLabelValues(col).Add(float64(n))
	}
	for col, n := range out.UnhandledTypes {
		metrics.UnhandledCells.WithLabelValues(col).Add(float64(n))
	}
}

// BuildProjection renders the partition query. Bounds are left as $1 and $2.
func BuildProjection(table, idColumn string, cols []column.Descriptor) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		expr := "t." + pgx.Identifier{col.Name}.Sanitize()
		if col.Name == column.RowIDColumn && col.Tag == column.TypeRowID {
			expr = "t.ctid"
		}
		if col.NeedsTextProjection() {
			expr += "::text"
		}
		sb.WriteString(expr)
		sb.WriteString(" AS ")
		sb.WriteString(pgx.Identifier{col.Name}.Sanitize())
	}
	id := pgx.Identifier{idColumn}.Sanitize()
	fmt.Fprintf(&sb, " FROM %s t WHERE t.%s >= $1 AND t.%s < $2", pgx.Identifier(strings.Split(table, ".")).Sanitize(), id, id)
	return sb.String()
}

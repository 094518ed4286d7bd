package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/scanbench/connpool"
	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	StandardContextTimeout = 10 * time.Second

	logger = gologger.NewLogger()
)

// ConnectToDB opens the general purpose pool used for provisioning. Scans never
// go through it, they use a connpool.Pool sized to the worker count.
func ConnectToDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	logger.Debug().Msg("connecting to postgres...")
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ParseConfig: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ConnectConfig: %w", err)
	}
	logger.Debug().Msg("connected to postgres")
	return pool, nil
}

// NewConnector returns a connpool.Connector that dials a fresh *pgx.Conn per call.
func NewConnector(dsn string) (connpool.Connector, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error in pgx.ParseConfig: %w", err)
	}
	config.RuntimeParams["application_name"] = "scanbench"

	return connpool.ConnectorFunc(func(ctx context.Context) (connpool.Conn, error) {
		s := time.Now()
		conn, err := pgx.ConnectConfig(ctx, config.Copy())
		if err != nil {
			return nil, fmt.Errorf("error in pgx.ConnectConfig: %w", err)
		}
		logger.Debug().Str("host", config.Host).Int64("durationNS", time.Since(s).Nanoseconds()).Msg("opened scan connection")
		return conn, nil
	}), nil
}

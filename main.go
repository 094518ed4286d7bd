package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/scanbench/crdb"
	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/danthegoodman1/scanbench/http_server"
	"github.com/danthegoodman1/scanbench/migrations"
	"github.com/danthegoodman1/scanbench/provision"
	"github.com/danthegoodman1/scanbench/report"
	"github.com/danthegoodman1/scanbench/runner"
	"github.com/danthegoodman1/scanbench/utils"
	"github.com/spf13/cobra"
)

var logger = gologger.NewLogger()

type benchFlags struct {
	dsn           string
	table         string
	rows          int64
	threads       int64
	fetchSize     int
	textColumns   int
	skipProvision bool
	report        bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &benchFlags{}
	root := &cobra.Command{
		Use:           "scanbench",
		Short:         "Measure partitioned full table scan throughput",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.dsn, "dsn", utils.PG_DSN, "postgres connection string")
	pf.StringVar(&f.table, "table", utils.BENCH_TABLE, "table to scan")
	pf.Int64Var(&f.rows, "rows", utils.BENCH_ROWS, "highest id to scan, ids start at 1")
	pf.IntVar(&f.textColumns, "text-columns", int(utils.SEED_TEXT_COLUMNS), "varchar columns to create when provisioning")

	run := &cobra.Command{
		Use:   "run",
		Short: "Provision the table if needed and run one scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), f)
		},
	}
	run.Flags().Int64Var(&f.threads, "threads", utils.BENCH_THREADS, "concurrent partition scans, 0 is one per cpu")
	run.Flags().IntVar(&f.fetchSize, "fetch-size", int(utils.FETCH_BATCH_SIZE), "rows per FETCH round trip")
	run.Flags().BoolVar(&f.skipProvision, "skip-provision", false, "scan the table as it is")
	run.Flags().BoolVar(&f.report, "report", false, "write a parquet report to S3_BUCKET_NAME or REPORT_DIR")

	prov := &cobra.Command{
		Use:   "provision",
		Short: "Create and seed the bench table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return provisionTable(cmd.Context(), f)
		},
	}

	var port string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and run control over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveHTTP(f, port)
		},
	}
	serve.Flags().StringVar(&port, "port", utils.GetEnvOrDefault("HTTP_PORT", "8080"), "http listen port")

	root.AddCommand(run, prov, serve)
	return root
}

func (f *benchFlags) config() runner.Config {
	cfg := runner.DefaultConfig()
	cfg.Table = f.table
	cfg.TotalRows = f.rows
	cfg.Workers = f.threads
	cfg.FetchSize = f.fetchSize
	return cfg
}

func provisionTable(ctx context.Context, f *benchFlags) error {
	pool, err := crdb.ConnectToDB(ctx, f.dsn)
	if err != nil {
		logger.Error().Err(err).Msg("error connecting to postgres")
		return err
	}
	defer pool.Close()

	err = provision.Provision(ctx, f.dsn, pool, provision.Options{
		Table:       f.table,
		Rows:        f.rows,
		TextColumns: f.textColumns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("error provisioning table")
	}
	return err
}

func runBench(ctx context.Context, f *benchFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cfg := f.config()
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid run configuration")
		return err
	}

	if f.skipProvision {
		// the table may not be ours, so a missing migration only warns
		if err := migrations.CheckMigrations(f.dsn, migrations.TableMigrations(f.table, f.textColumns)); err != nil {
			logger.Warn().Err(err).Str("table", f.table).Msg("bench table migrations not applied")
		}
	} else if err := provisionTable(ctx, f); err != nil {
		return err
	}

	connector, err := crdb.NewConnector(f.dsn)
	if err != nil {
		logger.Error().Err(err).Msg("error building connector")
		return err
	}
	s, err := runner.Execute(ctx, cfg, connector)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		return err
	}
	printSummary(os.Stdout, s)

	if f.report {
		if _, err := report.Save(ctx, s); err != nil {
			logger.Error().Err(err).Msg("error saving report")
			return err
		}
	}
	if !s.OK() {
		return fmt.Errorf("%d partitions failed", len(s.Failures))
	}
	return nil
}

func serveHTTP(f *benchFlags, port string) error {
	connector, err := crdb.NewConnector(f.dsn)
	if err != nil {
		logger.Error().Err(err).Msg("error building connector")
		return err
	}

	httpServer, err := http_server.StartHTTPServer(port, func(ctx context.Context, cfg runner.Config) (*runner.Summary, error) {
		return runner.Execute(ctx, cfg, connector)
	})
	if err != nil {
		logger.Error().Err(err).Msg("error starting http server")
		return err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
		return err
	}
	logger.Info().Msg("successfully shutdown HTTP server")
	return nil
}

package migrations

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/danthegoodman1/scanbench/gologger"
	"github.com/jackc/pgx/v4"
	// ensure "pgx" driver is loaded
	_ "github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrMigrationsNotRun = fmt.Errorf("not all migrations applied")

	logger = gologger.NewLogger()
)

// TableMigrations builds the migrations for a bench table with textColumns
// varchar columns plus one column for every other decoded type family. The
// migration ids carry the table name so several bench tables can share one
// migrations table.
func TableMigrations(table string, textColumns int) *migrate.MemoryMigrationSource {
	name := pgx.Identifier(strings.Split(table, ".")).Sanitize()

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n\tid bigint PRIMARY KEY", name)
	for i := 1; i <= textColumns; i++ {
		fmt.Fprintf(&sb, ",\n\tcol%d varchar(4000)", i)
	}
	sb.WriteString(",\n\tcol_bytes bytea")
	sb.WriteString(",\n\tcol_numeric numeric(18,4)")
	sb.WriteString(",\n\tcol_int bigint")
	sb.WriteString(",\n\tcol_ts timestamptz")
	sb.WriteString(",\n\tcol_xml xml")
	sb.WriteString(",\n\tcol_flag boolean")
	sb.WriteString("\n)")

	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id:   fmt.Sprintf("1_create_%s", table),
				Up:   []string{sb.String()},
				Down: []string{"DROP TABLE IF EXISTS " + name},
			},
		},
	}
}

func RunMigrations(dsn string, src migrate.MigrationSource) (int, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	ms := migrate.MigrationSet{
		TableName: "scanbench_migrations",
	}
	return ms.Exec(db, "postgres", src, migrate.Up)
}

func CheckMigrations(dsn string, src migrate.MigrationSource) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	ms := migrate.MigrationSet{
		TableName: "scanbench_migrations",
	}
	migration, _, err := ms.PlanMigration(db, "postgres", src, migrate.Up, 0)
	if err != nil {
		return err
	}
	if len(migration) > 0 {
		for _, mig := range migration {
			logger.Warn().Str("migrationID", mig.Id).Msg("missing migration")
		}
		return ErrMigrationsNotRun
	}
	return nil
}

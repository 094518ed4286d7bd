package migrations

import (
	"strings"
	"testing"
)

func TestTableMigrations(t *testing.T) {
	src := TableMigrations("test1", 3)
	migs, err := src.FindMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migs) != 1 || migs[0].Id != "1_create_test1" {
		t.Fatalf("got %+v", migs)
	}

	ddl := migs[0].Up[0]
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "test1"`,
		"id bigint PRIMARY KEY",
		"col1 varchar(4000)",
		"col3 varchar(4000)",
		"col_bytes bytea",
		"col_numeric numeric(18,4)",
		"col_xml xml",
		"col_flag boolean",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("missing %q in:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, "col4 ") {
		t.Fatalf("too many text columns:\n%s", ddl)
	}
	if migs[0].Down[0] != `DROP TABLE IF EXISTS "test1"` {
		t.Fatalf("down %q", migs[0].Down[0])
	}
}

func TestTableMigrationsSchemaQualified(t *testing.T) {
	migs, err := TableMigrations("bench.wide", 0).FindMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(migs[0].Up[0], `"bench"."wide"`) {
		t.Fatalf("got %s", migs[0].Up[0])
	}
}

package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/danthegoodman1/scanbench/runner"
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func printSummary(w io.Writer, s *runner.Summary) {
	fmt.Fprintf(w, "run %s on %s: %d workers, fetch size %d\n", s.RunID, s.Table, s.Workers, s.FetchSize)
	okColor.Fprintf(w, "scanned %d of %d rows in %s (%.0f rows/s)\n", s.RowsScanned, s.TotalRows, s.Elapsed, s.RowsPerSecond)

	for _, col := range sortedKeys(s.DecodeFailures) {
		warnColor.Fprintf(w, "  decode failures in %s: %d\n", col, s.DecodeFailures[col])
	}
	for _, col := range sortedKeys(s.UnhandledTypes) {
		warnColor.Fprintf(w, "  unhandled cells in %s: %d\n", col, s.UnhandledTypes[col])
	}
	for _, f := range s.Failures {
		failColor.Fprintf(w, "  partition [%d,%d) failed: %s\n", f.StartID, f.EndID, f.Error)
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

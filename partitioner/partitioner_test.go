package partitioner

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPlanEvenSplit(t *testing.T) {
	parts, err := Plan(100_000, 4)
	if err != nil {
		t.Fatal(err)
	}

	want := []Partition{
		{StartID: 1, Size: 25_000},
		{StartID: 25_001, Size: 25_000},
		{StartID: 50_001, Size: 25_000},
		{StartID: 75_001, Size: 25_000},
	}
	if len(parts) != len(want) {
		t.Fatalf("got %d partitions, want %d", len(parts), len(want))
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("partition %d: got %s want %s", i, parts[i], want[i])
		}
	}
	if parts[3].EndID() != 100_001 {
		t.Fatalf("last end id %d", parts[3].EndID())
	}
}

func TestPlanSmall(t *testing.T) {
	parts, err := Plan(40, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 || parts[0].String() != "[1,21)" || parts[1].String() != "[21,41)" {
		t.Fatalf("got %v", parts)
	}
}

func TestPlanClampsRemainder(t *testing.T) {
	// size 13, the id 40 must still be covered without overrunning past it
	parts, err := Plan(40, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 4 {
		t.Fatalf("got %d partitions: %v", len(parts), parts)
	}
	last := parts[len(parts)-1]
	if last.StartID != 40 || last.EndID() != 41 {
		t.Fatalf("last partition %s", last)
	}
}

func TestPlanSingleWorker(t *testing.T) {
	parts, err := Plan(7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || parts[0].String() != "[1,8)" {
		t.Fatalf("got %v", parts)
	}
}

func TestPlanConfigErrors(t *testing.T) {
	cases := []struct {
		rows, workers int64
	}{
		{0, 1},
		{-5, 1},
		{10, 0},
		{10, -1},
		{3, 4},
	}
	for _, c := range cases {
		_, err := Plan(c.rows, c.workers)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Plan(%d, %d): got %v, want ErrInvalidConfig", c.rows, c.workers, err)
		}
		if err := Check(c.rows, c.workers); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Check(%d, %d): got %v, want ErrInvalidConfig", c.rows, c.workers, err)
		}
	}
	if err := Check(1<<40, 1<<32); err != nil {
		t.Fatalf("got %v", err)
	}

	_, err := Plan(3, 4)
	if !errors.Is(err, ErrTooManyWorkers) {
		t.Fatalf("got %v, want ErrTooManyWorkers", err)
	}
}

func TestPlanCoverage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("partitions tile [1, totalRows+1) with no gap or overlap", prop.ForAll(
		func(totalRows, workers int64) bool {
			if workers > totalRows {
				workers = totalRows
			}
			parts, err := Plan(totalRows, workers)
			if err != nil {
				return false
			}
			next := int64(1)
			for _, p := range parts {
				if p.StartID != next || p.Size <= 0 {
					return false
				}
				next = p.EndID()
			}
			size := totalRows / workers
			return next == totalRows+1 && int64(len(parts)) == (totalRows+size-1)/size
		},
		gen.Int64Range(1, 5_000_000),
		gen.Int64Range(1, 512),
	))

	properties.TestingRun(t)
}

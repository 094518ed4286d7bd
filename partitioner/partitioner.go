package partitioner

import (
	"fmt"

	"github.com/danthegoodman1/scanbench/utils"
)

type (
	// Partition is the half-open id range [StartID, StartID+Size).
	Partition struct {
		StartID int64
		Size    int64
	}
)

var (
	ErrInvalidConfig  = utils.PermError("invalid scan configuration")
	ErrTooManyWorkers = fmt.Errorf("%w: more workers than rows", ErrInvalidConfig)
)

func (p Partition) EndID() int64 {
	return p.StartID + p.Size
}

func (p Partition) String() string {
	return fmt.Sprintf("[%d,%d)", p.StartID, p.EndID())
}

// Check validates the plan inputs without building the plan.
func Check(totalRows, workers int64) error {
	if totalRows <= 0 {
		return fmt.Errorf("%w: total rows must be positive, got %d", ErrInvalidConfig, totalRows)
	}
	if workers <= 0 {
		return fmt.Errorf("%w: worker count must be positive, got %d", ErrInvalidConfig, workers)
	}
	if workers > totalRows {
		return fmt.Errorf("%w: %d workers for %d rows", ErrTooManyWorkers, workers, totalRows)
	}
	return nil
}

// Plan splits ids 1..totalRows into consecutive partitions of totalRows/workers
// ids each. When the division leaves a remainder the trailing ids get one extra,
// shorter partition, so the result tiles [1, totalRows+1) exactly and never
// reaches past totalRows.
func Plan(totalRows, workers int64) ([]Partition, error) {
	if err := Check(totalRows, workers); err != nil {
		return nil, err
	}

	size := totalRows / workers
	parts := make([]Partition, 0, (totalRows+size-1)/size)
	for start := int64(1); start <= totalRows; start += size {
		p := Partition{StartID: start, Size: size}
		if p.EndID() > totalRows+1 {
			p.Size = totalRows + 1 - start
		}
		parts = append(parts, p)
	}
	return parts, nil
}

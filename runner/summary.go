package runner

import (
	"sort"
	"time"

	"github.com/danthegoodman1/scanbench/scanner"
)

type (
	Summary struct {
		RunID     string `json:"runID"`
		Table     string `json:"table"`
		TotalRows int64  `json:"totalRows"`
		Workers   int64  `json:"workers"`
		FetchSize int    `json:"fetchSize"`

		RowsScanned    int64              `json:"rowsScanned"`
		DecodeFailures map[string]int64   `json:"decodeFailures"`
		UnhandledTypes map[string]int64   `json:"unhandledTypes"`
		Failures       []PartitionFailure `json:"failures"`
		Partitions     []PartitionResult  `json:"partitions"`

		StartedAt     time.Time     `json:"startedAt"`
		Elapsed       time.Duration `json:"elapsedNS"`
		RowsPerSecond float64       `json:"rowsPerSecond"`

		Outcomes []scanner.Outcome `json:"-"`
	}

	PartitionFailure struct {
		StartID int64  `json:"startID"`
		EndID   int64  `json:"endID"`
		Error   string `json:"error"`
	}

	// PartitionResult is the flat, serializable view of one outcome.
	PartitionResult struct {
		StartID        int64  `json:"startID"`
		EndID          int64  `json:"endID"`
		RowsScanned    int64  `json:"rowsScanned"`
		DecodeFailures int64  `json:"decodeFailures"`
		UnhandledCells int64  `json:"unhandledCells"`
		Fetches        int64  `json:"fetches"`
		DurationMS     int64  `json:"durationMS"`
		Error          string `json:"error"`
	}
)

func summarize(runID string, cfg Config, outcomes []scanner.Outcome, started time.Time, elapsed time.Duration) *Summary {
	s := &Summary{
		RunID:          runID,
		Table:          cfg.Table,
		TotalRows:      cfg.TotalRows,
		Workers:        cfg.Workers,
		FetchSize:      cfg.FetchSize,
		DecodeFailures: make(map[string]int64),
		UnhandledTypes: make(map[string]int64),
		StartedAt:      started,
		Elapsed:        elapsed,
		Outcomes:       outcomes,
	}

	for _, o := range outcomes {
		s.RowsScanned += o.RowsScanned
		res := PartitionResult{
			StartID:     o.Partition.StartID,
			EndID:       o.Partition.EndID(),
			RowsScanned: o.RowsScanned,
			Fetches:     int64(o.Fetches),
			DurationMS:  o.Duration.Milliseconds(),
		}
		for col, n := range o.DecodeFailures {
			s.DecodeFailures[col] += n
			res.DecodeFailures += n
		}
		for col, n := range o.UnhandledTypes {
			s.UnhandledTypes[col] += n
			res.UnhandledCells += n
		}
		if o.Fatal() {
			res.Error = o.Err.Error()
			s.Failures = append(s.Failures, PartitionFailure{
				StartID: o.Partition.StartID,
				EndID:   o.Partition.EndID(),
				Error:   o.Err.Error(),
			})
		}
		s.Partitions = append(s.Partitions, res)
	}

	sort.Slice(s.Partitions, func(i, j int) bool { return s.Partitions[i].StartID < s.Partitions[j].StartID })
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].StartID < s.Failures[j].StartID })

	if secs := elapsed.Seconds(); secs > 0 {
		s.RowsPerSecond = float64(s.RowsScanned) / secs
	}
	return s
}

// TotalDecodeFailures sums decode failures over every column.
func (s *Summary) TotalDecodeFailures() int64 {
	var n int64
	for _, v := range s.DecodeFailures {
		n += v
	}
	return n
}

// OK is true when every partition was scanned to the end.
func (s *Summary) OK() bool {
	return len(s.Failures) == 0
}

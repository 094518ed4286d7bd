package http_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/danthegoodman1/scanbench/report"
	"github.com/danthegoodman1/scanbench/runner"
	"github.com/rs/zerolog"
)

type (
	RunFunc func(ctx context.Context, cfg runner.Config) (*runner.Summary, error)

	StartRunRequest struct {
		// zero values fall back to the BENCH_* env defaults
		Table     string `json:"table"`
		Rows      int64  `json:"rows" validate:"gte=0,max=1000000000000"`
		Workers   int64  `json:"workers" validate:"gte=0,max=4096"`
		FetchSize int    `json:"fetchSize" validate:"gte=0,max=1000000"`
		// Report writes the parquet report when the run finishes
		Report bool `json:"report"`
		// Wait holds the request open until the run finishes
		Wait bool `json:"wait"`
	}

	RunStatus struct {
		Running bool            `json:"running"`
		Summary *runner.Summary `json:"summary,omitempty"`
		Report  string          `json:"report,omitempty"`
		Error   string          `json:"error,omitempty"`
	}

	// runTracker allows one run at a time and remembers the last outcome.
	runTracker struct {
		run    RunFunc
		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu      sync.Mutex
		running bool
		ran     bool
		latest  RunStatus
	}
)

var ErrRunInProgress = errors.New("a run is already in progress")

func (r StartRunRequest) config() runner.Config {
	cfg := runner.DefaultConfig()
	if r.Table != "" {
		cfg.Table = r.Table
	}
	if r.Rows != 0 {
		cfg.TotalRows = r.Rows
	}
	if r.Workers != 0 {
		cfg.Workers = r.Workers
	}
	if r.FetchSize != 0 {
		cfg.FetchSize = r.FetchSize
	}
	return cfg
}

func (s *HTTPServer) StartRun(c *CustomContext) error {
	var reqBody StartRunRequest
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	cfg := reqBody.config()
	if err := cfg.Validate(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	if reqBody.Wait {
		status, err := s.runs.runSync(c.Request().Context(), cfg, reqBody.Report)
		if errors.Is(err, ErrRunInProgress) {
			return c.String(http.StatusConflict, err.Error())
		}
		if err != nil {
			return c.InternalError(err, "error running scan")
		}
		return c.JSON(http.StatusOK, status)
	}

	if err := s.runs.startAsync(cfg, reqBody.Report); err != nil {
		return c.String(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, RunStatus{Running: true})
}

func (s *HTTPServer) LatestRun(c *CustomContext) error {
	status, ok := s.runs.status()
	if !ok {
		return c.String(http.StatusNotFound, "no runs yet")
	}
	return c.JSON(http.StatusOK, status)
}

func newRunTracker(run RunFunc) *runTracker {
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	return &runTracker{run: run, ctx: ctx, cancel: cancel}
}

func (rt *runTracker) begin() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.running {
		return ErrRunInProgress
	}
	rt.running = true
	rt.ran = true
	rt.latest = RunStatus{Running: true}
	return nil
}

func (rt *runTracker) finish(status RunStatus) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.running = false
	rt.latest = status
}

func (rt *runTracker) status() (RunStatus, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.latest, rt.ran
}

func (rt *runTracker) execute(ctx context.Context, cfg runner.Config, withReport bool) (RunStatus, error) {
	summary, err := rt.run(ctx, cfg)
	status := RunStatus{Summary: summary}
	if err == nil && withReport {
		status.Report, err = report.Save(ctx, summary)
		if err != nil {
			err = fmt.Errorf("error in report.Save: %w", err)
		}
	}
	if err != nil {
		status.Error = err.Error()
	}
	rt.finish(status)
	return status, err
}

func (rt *runTracker) runSync(ctx context.Context, cfg runner.Config, withReport bool) (RunStatus, error) {
	if err := rt.begin(); err != nil {
		return RunStatus{}, err
	}
	return rt.execute(ctx, cfg, withReport)
}

func (rt *runTracker) startAsync(cfg runner.Config, withReport bool) error {
	if err := rt.begin(); err != nil {
		return err
	}
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if _, err := rt.execute(rt.ctx, cfg, withReport); err != nil {
			zerolog.Ctx(rt.ctx).Error().Err(err).Msg("background run failed")
		}
	}()
	return nil
}

func (rt *runTracker) stop() {
	rt.cancel()
	rt.wg.Wait()
}

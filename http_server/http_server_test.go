package http_server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danthegoodman1/scanbench/pgtest"
	"github.com/danthegoodman1/scanbench/runner"
	"github.com/labstack/echo/v4"
)

func do(s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func pgtestRun(rows int64) RunFunc {
	return func(ctx context.Context, cfg runner.Config) (*runner.Summary, error) {
		return runner.Execute(ctx, cfg, &pgtest.Connector{Table: pgtest.NewTable(rows)})
	}
}

func TestHealthCheckAndMetrics(t *testing.T) {
	s := NewHTTPServer(pgtestRun(1))

	rec := do(s, http.MethodGet, "/hc", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("hc: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "scanbench_rows_scanned_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestRunAndWait(t *testing.T) {
	s := NewHTTPServer(pgtestRun(40))

	if rec := do(s, http.MethodGet, "/runs/latest", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("latest before any run: %d", rec.Code)
	}

	rec := do(s, http.MethodPost, "/runs", `{"table":"test1","rows":40,"workers":2,"wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var status RunStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Running || status.Summary == nil || status.Summary.RowsScanned != 40 || status.Error != "" {
		t.Fatalf("got %+v", status)
	}

	rec = do(s, http.MethodGet, "/runs/latest", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"rowsScanned":40`) {
		t.Fatalf("latest: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	s := NewHTTPServer(pgtestRun(3))

	for _, body := range []string{
		`{"rows":-1,"wait":true}`,
		`{"rows":3,"workers":8,"wait":true}`,
		`{"rows":"many"}`,
		`{"rows":3,"workers":4097,"wait":true}`,
		`{"rows":1000000000001,"wait":true}`,
		`{"rows":8589934592,"workers":4294967297,"wait":true}`,
	} {
		if rec := do(s, http.MethodPost, "/runs", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d %s", body, rec.Code, rec.Body.String())
		}
	}
	if rec := do(s, http.MethodGet, "/runs/latest", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("rejected runs were recorded: %d", rec.Code)
	}
}

func TestAsyncRunIsExclusive(t *testing.T) {
	release := make(chan struct{})
	s := NewHTTPServer(func(ctx context.Context, cfg runner.Config) (*runner.Summary, error) {
		<-release
		return &runner.Summary{Table: cfg.Table, RowsScanned: cfg.TotalRows}, nil
	})

	if rec := do(s, http.MethodPost, "/runs", `{"table":"test1","rows":10,"workers":1}`); rec.Code != http.StatusAccepted {
		t.Fatalf("got %d", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/runs", `{"table":"test1","rows":10,"workers":1}`); rec.Code != http.StatusConflict {
		t.Fatalf("second run: got %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/runs/latest", ""); !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Fatalf("latest while running: %s", rec.Body.String())
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(s, http.MethodGet, "/runs/latest", "")
		if strings.Contains(rec.Body.String(), `"rowsScanned":10`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never finished: %s", rec.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/core"
	"github.com/newthinker/crossbt/internal/metrics"
)

// staticProvider serves the same rising series for every symbol
type staticProvider struct{}

func (staticProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	closes := []float64{10, 9, 8, 7, 6, 7, 8, 9, 10, 11, 12}
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{Symbol: symbol, Close: c, Time: start.AddDate(0, 0, i)}
	}
	return bars, nil
}

func testParams() backtest.Params {
	p := backtest.DefaultParams()
	p.Short, p.Long = 2, 4
	return p
}

func newTestServer(t *testing.T, cfg Config, withMetrics bool) *Server {
	t.Helper()
	deps := Dependencies{
		Runner:   backtest.New(staticProvider{}),
		Defaults: testParams(),
	}
	if withMetrics {
		deps.Metrics = metrics.NewRegistry()
	}
	srv, err := NewServer(cfg, deps, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", APIKey: "test-key"}, false)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request ID header from logging middleware")
	}
}

func TestServer_RequiresRunner(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without runner")
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", APIKey: "test-key"}, false)

	// Without API key
	req := httptest.NewRequest("GET", "/api/v1/backtest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", APIKey: "test-key"}, false)

	// With API key
	req := httptest.NewRequest("GET", "/api/v1/backtest", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	// Empty APIKey = disabled auth
	srv := newTestServer(t, Config{Host: "localhost"}, false)

	req := httptest.NewRequest("GET", "/api/v1/backtest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with disabled auth, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost"}, false)

	req := httptest.NewRequest("DELETE", "/api/v1/backtest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_BacktestRoundTrip(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", JobTTL: time.Hour}, true)
	h := srv.Handler()

	req := httptest.NewRequest("POST", "/api/v1/backtest", bytes.NewBufferString(`{"symbols":["AAPL","MSFT"]}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	var status struct {
		Data struct {
			Status string         `json:"status"`
			Result backtest.Batch `json:"result"`
		} `json:"data"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/backtest/"+created.Data.JobID, nil))
		json.Unmarshal(w.Body.Bytes(), &status)
		if status.Data.Status == "complete" || status.Data.Status == "failed" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if status.Data.Status != "complete" {
		t.Fatalf("expected complete, got %q", status.Data.Status)
	}
	if len(status.Data.Result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(status.Data.Result.Results))
	}
	if got := status.Data.Result.Results[0].Stats.TotalTrades; got != 1 {
		t.Errorf("expected 1 trade, got %d", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost"}, true)
	h := srv.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `http_requests_total{method="GET",path="/api/health",status="2xx"} 1`) {
		t.Errorf("expected health request in metrics output")
	}
}

func TestServer_NoMetricsRoute(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost"}, false)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestServer_APIAuth_PublicPaths(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", APIKey: "test-key", MetricsPath: "/internal/metrics"}, true)
	h := srv.Handler()

	for path, want := range map[string]int{
		"/api/health":       http.StatusOK,
		"/internal/metrics": http.StatusOK,
		"/api/v1/backtest":  http.StatusUnauthorized,
		"/metrics":          http.StatusUnauthorized,
	} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("GET %s: expected %d, got %d", path, want, w.Code)
		}
	}
}

func TestServer_APIAuth_CreateNeedsKey(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", APIKey: "test-key"}, false)
	h := srv.Handler()

	body := `{"symbols":["AAPL"]}`
	req := httptest.NewRequest("POST", "/api/v1/backtest", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/backtest", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with bearer key, got %d: %s", w.Code, w.Body.String())
	}
}

package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/crossbt/internal/collector"
	"github.com/newthinker/crossbt/internal/core"
)

func TestYahoo_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*Yahoo)(nil)
}

func TestYahoo_Name(t *testing.T) {
	y := New()
	if y.Name() != "yahoo" {
		t.Errorf("expected 'yahoo', got '%s'", y.Name())
	}
}

func TestYahoo_ToYahooSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"0700.HK", "0700.HK"},
		{"600519.SH", "600519.SS"}, // Shanghai -> SS for Yahoo
		{"000001.SZ", "000001.SZ"},
	}

	y := New()
	for _, tc := range tests {
		got := y.toYahooSymbol(tc.input)
		if got != tc.expected {
			t.Errorf("toYahooSymbol(%s) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestValidateSymbol(t *testing.T) {
	valid := []string{"AAPL", "BRK-B", "^GSPC", "600519.SH"}
	for _, s := range valid {
		if err := validateSymbol(s); err != nil {
			t.Errorf("validateSymbol(%q) = %v", s, err)
		}
	}

	invalid := []string{"", "AAPL/../x", "A B"}
	for _, s := range invalid {
		if err := validateSymbol(s); err == nil {
			t.Errorf("validateSymbol(%q) should fail", s)
		}
	}
}

const chartFixture = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "currency": "USD"},
      "timestamp": [1704205800, 1704292200, 1704378600],
      "indicators": {"quote": [{
        "open":   [187.15, null, 182.15],
        "high":   [188.44, null, 183.09],
        "low":    [183.89, null, 180.88],
        "close":  [185.64, null, 181.91],
        "volume": [82488700, null, null]
      }]}
    }],
    "error": null
  }
}`

func TestYahoo_FetchHistory(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		w.Write([]byte(chartFixture))
	}))
	defer srv.Close()

	y := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars, err := y.FetchHistory(context.Background(), "AAPL", start, start.AddDate(0, 0, 5), "1d")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}

	if gotPath != "/AAPL" || gotInterval != "1d" {
		t.Errorf("unexpected request %s interval=%s", gotPath, gotInterval)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (null close skipped), got %d", len(bars))
	}
	if bars[0].Close != 185.64 || bars[0].Volume != 82488700 {
		t.Errorf("unexpected first bar: %+v", bars[0])
	}
	if bars[1].Volume != 0 {
		t.Errorf("null volume should be zero, got %d", bars[1].Volume)
	}
	if !bars[1].Time.Equal(time.Unix(1704378600, 0)) {
		t.Errorf("unexpected time %v", bars[1].Time)
	}
}

func TestYahoo_FetchHistory_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	y := New(WithBaseURL(srv.URL))
	_, err := y.FetchHistory(context.Background(), "ZZZZ", time.Now().AddDate(-1, 0, 0), time.Now(), "1d")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestYahoo_FetchHistory_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	y := New(WithBaseURL(srv.URL))
	_, err := y.FetchHistory(context.Background(), "AAPL", time.Now().AddDate(-1, 0, 0), time.Now(), "1d")
	if !errors.Is(err, core.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestYahoo_FetchHistory_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartFixture))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	y := New(WithBaseURL(srv.URL))
	if _, err := y.FetchHistory(ctx, "AAPL", time.Now().AddDate(-1, 0, 0), time.Now(), "1d"); err == nil {
		t.Error("expected error for canceled context")
	}
}

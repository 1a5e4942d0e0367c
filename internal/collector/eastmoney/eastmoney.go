package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

const defaultBaseURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

// China Standard Time; intraday klines are stamped in exchange time
var exchangeZone = time.FixedZone("CST", 8*60*60)

// Eastmoney fetches A-share klines from the Eastmoney history API
type Eastmoney struct {
	client  *http.Client
	baseURL string
}

// Option configures an Eastmoney collector
type Option func(*Eastmoney)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(e *Eastmoney) { e.client = c }
}

// WithBaseURL points the collector at another kline endpoint
func WithBaseURL(url string) Option {
	return func(e *Eastmoney) { e.baseURL = url }
}

// New creates a new Eastmoney collector
func New(opts ...Option) *Eastmoney {
	e := &Eastmoney{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Eastmoney) Name() string {
	return "eastmoney"
}

// parseSymbol converts 600519.SH to (600519, 1) for Eastmoney API
// Shanghai = 1, Shenzhen = 0
func (e *Eastmoney) parseSymbol(symbol string) (code, market string, err error) {
	code, exchange, ok := strings.Cut(symbol, ".")
	if !ok {
		// Bare codes: 6xxxxx trades in Shanghai, the rest in Shenzhen
		if strings.HasPrefix(symbol, "6") {
			return symbol, "1", nil
		}
		return symbol, "0", nil
	}

	switch exchange {
	case "SH", "SS":
		return code, "1", nil
	case "SZ":
		return code, "0", nil
	default:
		return "", "", fmt.Errorf("unsupported exchange %q in %s", exchange, symbol)
	}
}

// FetchHistory fetches unadjusted klines (fqt=0) between start and end
func (e *Eastmoney) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	code, market, err := e.parseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	secid := fmt.Sprintf("%s.%s", market, code)
	klt := e.toKlineType(interval)

	beg, fin := "0", "20500101"
	if !start.IsZero() {
		beg = start.In(exchangeZone).Format("20060102")
	}
	if !end.IsZero() {
		fin = end.In(exchangeZone).Format("20060102")
	}

	url := fmt.Sprintf("%s?secid=%s&klt=%s&fqt=0&beg=%s&end=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56",
		e.baseURL, secid, klt, beg, fin)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Data == nil || len(result.Data.Klines) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s: no klines", symbol))
	}

	data := make([]core.Bar, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			continue
		}
		bar.Symbol = symbol
		bar.Interval = interval
		data = append(data, bar)
	}

	return data, nil
}

// parseKline reads "time,open,close,high,low,volume"
func parseKline(line string) (core.Bar, bool) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return core.Bar{}, false
	}

	var t time.Time
	var err error
	if len(f[0]) == len("2006-01-02") {
		t, err = time.Parse("2006-01-02", f[0])
	} else {
		t, err = time.ParseInLocation("2006-01-02 15:04", f[0], exchangeZone)
		t = t.UTC()
	}
	if err != nil {
		return core.Bar{}, false
	}

	closePrice, err := strconv.ParseFloat(f[2], 64)
	if err != nil {
		return core.Bar{}, false
	}
	open, _ := strconv.ParseFloat(f[1], 64)
	high, _ := strconv.ParseFloat(f[3], 64)
	low, _ := strconv.ParseFloat(f[4], 64)
	volume, _ := strconv.ParseInt(f[5], 10, 64)

	return core.Bar{
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
		Time:   t,
	}, true
}

func (e *Eastmoney) toKlineType(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "1wk":
		return "102"
	case "1mo":
		return "103"
	default:
		return "101"
	}
}

type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

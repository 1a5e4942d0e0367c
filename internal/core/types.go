package core

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"
)

// Bar represents one sampled candle. High and Low are optional; a zero
// value means the provider supplied close-only data.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // "1m", "5m", "1d"
	Open     float64   `json:"open,omitempty"`
	High     float64   `json:"high,omitempty"`
	Low      float64   `json:"low,omitempty"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume,omitempty"`
	Time     time.Time `json:"time"`
}

// HasRange reports whether the bar carries a usable high/low pair.
func (b Bar) HasRange() bool {
	return b.High > 0 && b.Low > 0 && b.High >= b.Low
}

// IsValid checks if the bar has a usable close
func (b Bar) IsValid() bool {
	return b.Close > 0 && !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) && !b.Time.IsZero()
}

// NormalizeBars returns the valid bars in ascending time order with unique
// timestamps. When two bars share a timestamp the later one in the input wins.
func NormalizeBars(bars []Bar) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.IsValid() {
			out = append(out, b)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

// OptFloat is a float64 that may be unset. Indicator warm-up values,
// trailing-stop levels and degenerate statistics use it instead of NaN.
type OptFloat struct {
	Value float64
	Valid bool
}

// Some returns a set OptFloat. NaN collapses to unset.
func Some(v float64) OptFloat {
	if math.IsNaN(v) {
		return OptFloat{}
	}
	return OptFloat{Value: v, Valid: true}
}

// None returns an unset OptFloat.
func None() OptFloat {
	return OptFloat{}
}

// Get returns the value and whether it is set.
func (o OptFloat) Get() (float64, bool) {
	return o.Value, o.Valid
}

// Or returns the value, or def when unset.
func (o OptFloat) Or(def float64) float64 {
	if !o.Valid {
		return def
	}
	return o.Value
}

// Float64 returns the value, or NaN when unset.
func (o OptFloat) Float64() float64 {
	return o.Or(math.NaN())
}

func (o OptFloat) String() string {
	if !o.Valid {
		return "NaN"
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

// MarshalJSON encodes unset values as null.
func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid || math.IsInf(o.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON decodes null as unset.
func (o *OptFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Position is the exposure held as of a bar's close.
type Position int8

const (
	Short Position = -1
	Flat  Position = 0
	Long  Position = 1
)

func (p Position) String() string {
	switch p {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Action is the label of a logged position transition
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionShort    Action = "SHORT"
	ActionCover    Action = "COVER"
	ActionCoverBuy Action = "COVER+BUY"
	ActionFlat     Action = "FLAT"
)

// Reason records which event caused a transition
type Reason string

const (
	ReasonBuyCross  Reason = "buy_cross"
	ReasonSellCross Reason = "sell_cross"
	ReasonLongStop  Reason = "long_stop"
	ReasonShortStop Reason = "short_stop"
)

// TradeRecord is one entry of the append-only trade log
type TradeRecord struct {
	Time         time.Time `json:"time"`
	Action       Action    `json:"action"`
	Reason       Reason    `json:"reason"`
	Price        float64   `json:"price"`
	FromPosition Position  `json:"from_position"`
	ToPosition   Position  `json:"to_position"`
}

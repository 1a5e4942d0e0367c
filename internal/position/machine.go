// Package position resolves, bar by bar, the position held under a
// crossover strategy with an optional ATR trailing stop.
package position

import (
	"fmt"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

// Config controls stop and direction handling
type Config struct {
	ATRMultiplier float64
	LongOnly      bool
	TrailingStop  bool
}

// Input is everything the machine observes for one bar
type Input struct {
	Time  time.Time
	Price float64
	ATR   core.OptFloat
	Buy   bool
	Sell  bool
}

// Output is the resolved state as of one bar's close
type Output struct {
	Position   core.Position
	LongTrail  core.OptFloat
	ShortTrail core.OptFloat
	Stopped    bool
}

// Result holds the per-bar series and the trade log of one run
type Result struct {
	Positions  []core.Position
	LongTrail  []core.OptFloat
	ShortTrail []core.OptFloat
	StopEvents []bool
	trades     []core.TradeRecord
}

// Trades returns a copy of the trade log in bar order
func (r *Result) Trades() []core.TradeRecord {
	out := make([]core.TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

// Len returns the number of bars resolved
func (r *Result) Len() int {
	return len(r.Positions)
}

// Machine applies entry, exit and trailing-stop rules sequentially
type Machine struct {
	cfg Config
}

// New creates a Machine. The multiplier must be positive when stops are on.
func New(cfg Config) (*Machine, error) {
	if cfg.TrailingStop && !(cfg.ATRMultiplier > 0) {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("atr multiplier must be positive, got %v", cfg.ATRMultiplier))
	}
	return &Machine{cfg: cfg}, nil
}

// state is the accumulator carried from one bar to the next
type state struct {
	position   core.Position
	longTrail  core.OptFloat
	shortTrail core.OptFloat
}

// Run folds step over inputs in order
func (m *Machine) Run(inputs []Input) *Result {
	res := &Result{
		Positions:  make([]core.Position, 0, len(inputs)),
		LongTrail:  make([]core.OptFloat, 0, len(inputs)),
		ShortTrail: make([]core.OptFloat, 0, len(inputs)),
		StopEvents: make([]bool, 0, len(inputs)),
	}

	var s state
	for _, in := range inputs {
		var out Output
		var trade *core.TradeRecord
		s, out, trade = m.step(s, in)

		res.Positions = append(res.Positions, out.Position)
		res.LongTrail = append(res.LongTrail, out.LongTrail)
		res.ShortTrail = append(res.ShortTrail, out.ShortTrail)
		res.StopEvents = append(res.StopEvents, out.Stopped)
		if trade != nil {
			res.trades = append(res.trades, *trade)
		}
	}

	return res
}

// step resolves one bar: stop evaluation, then entries and exits, then
// trade classification against the previous bar's position.
func (m *Machine) step(s state, in Input) (state, Output, *core.TradeRecord) {
	prev := s.position
	price := in.Price

	var stopped bool
	var stopReason core.Reason

	if m.cfg.TrailingStop {
		switch s.position {
		case core.Long:
			if atr, ok := in.ATR.Get(); ok {
				candidate := price - m.cfg.ATRMultiplier*atr
				if trail, set := s.longTrail.Get(); !set || candidate > trail {
					s.longTrail = core.Some(candidate)
				}
			}
			if trail, set := s.longTrail.Get(); set && price <= trail {
				s.position = core.Flat
				s.longTrail = core.None()
				stopped, stopReason = true, core.ReasonLongStop
			}
		case core.Short:
			if m.cfg.LongOnly {
				break
			}
			if atr, ok := in.ATR.Get(); ok {
				candidate := price + m.cfg.ATRMultiplier*atr
				if trail, set := s.shortTrail.Get(); !set || candidate < trail {
					s.shortTrail = core.Some(candidate)
				}
			}
			if trail, set := s.shortTrail.Get(); set && price >= trail {
				s.position = core.Flat
				s.shortTrail = core.None()
				stopped, stopReason = true, core.ReasonShortStop
			}
		}
	}

	if m.cfg.LongOnly {
		switch {
		case s.position == core.Flat && in.Buy:
			s.position = core.Long
			s.longTrail = m.entryTrail(price, in.ATR, -1)
		case s.position == core.Long && in.Sell:
			s.position = core.Flat
			s.longTrail = core.None()
		}
	} else {
		switch {
		case in.Buy && s.position != core.Long:
			s.position = core.Long
			s.longTrail = m.entryTrail(price, in.ATR, -1)
			s.shortTrail = core.None()
		case in.Sell && s.position != core.Short:
			s.position = core.Short
			s.shortTrail = m.entryTrail(price, in.ATR, 1)
			s.longTrail = core.None()
		}
	}

	out := Output{
		Position:   s.position,
		LongTrail:  s.longTrail,
		ShortTrail: s.shortTrail,
		Stopped:    stopped,
	}

	if prev == s.position {
		return s, out, nil
	}

	trade := &core.TradeRecord{
		Time:         in.Time,
		Price:        price,
		FromPosition: prev,
		ToPosition:   s.position,
	}

	if stopped {
		// One record per bar: a same-bar re-entry is folded into ToPosition.
		trade.Reason = stopReason
		switch prev {
		case core.Long:
			trade.Action = core.ActionSell
		case core.Short:
			trade.Action = core.ActionCover
		default:
			trade.Action = core.ActionFlat
		}
		return s, out, trade
	}

	switch {
	case s.position == core.Long && prev == core.Short:
		trade.Action, trade.Reason = core.ActionCoverBuy, core.ReasonBuyCross
	case s.position == core.Long:
		trade.Action, trade.Reason = core.ActionBuy, core.ReasonBuyCross
	case s.position == core.Flat && prev == core.Long:
		trade.Action, trade.Reason = core.ActionSell, core.ReasonSellCross
	case s.position == core.Short:
		trade.Action, trade.Reason = core.ActionShort, core.ReasonSellCross
	default:
		return s, out, nil
	}

	return s, out, trade
}

// entryTrail places the initial stop dir*multiplier*ATR away from price.
// Without ATR the stop starts at price.
func (m *Machine) entryTrail(price float64, atr core.OptFloat, dir float64) core.OptFloat {
	if !m.cfg.TrailingStop {
		return core.None()
	}
	if v, ok := atr.Get(); ok {
		return core.Some(price + dir*m.cfg.ATRMultiplier*v)
	}
	return core.Some(price)
}

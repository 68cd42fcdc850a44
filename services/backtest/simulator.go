// Package backtest replays the signal rule set over historical bars and
// simulates entries and exits on bar closes, producing a trade ledger.
package backtest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ema-scanner/services/market"
	"ema-scanner/services/signals"
)

// SignalSource produces per-bar rule evaluations for a symbol. Implemented by
// *signals.Engine; tests substitute scripted sources.
type SignalSource interface {
	EvaluateSeries(symbol string, bars, htfBars []market.Bar) []signals.BarSignals
}

// Simulator drives the per-symbol position state machine. It is stateless
// between runs and safe for concurrent use: all per-run state lives in the
// run's stack frame, so independent symbols never share anything mutable.
type Simulator struct {
	cfg    Config
	source SignalSource
	logger *zap.Logger
}

// NewSimulator validates cfg and returns a simulator reading signals from
// source.
func NewSimulator(cfg Config, source SignalSource, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("nil signal source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, source: source, logger: logger}, nil
}

// run-local state machine: flat or holding exactly one position.
type positionState struct {
	open *Position
}

func (st *positionState) inPosition() bool { return st.open != nil }

// RunSymbol simulates one symbol over its bar series in chronological order.
// A panic while processing a single bar is logged and that bar skipped; any
// position still open after the last bar is force-closed against it.
func (s *Simulator) RunSymbol(ctx context.Context, symbol string, bars, htfBars []market.Bar) []Trade {
	results := s.source.EvaluateSeries(symbol, bars, htfBars)
	if len(results) == 0 {
		return nil
	}

	var (
		st     positionState
		trades []Trade
	)
	offset := results[0].Index
	for _, res := range results {
		if ctx.Err() != nil {
			s.logger.Warn("simulation cancelled",
				zap.String("symbol", symbol),
				zap.Int("bar", res.Index),
			)
			break
		}
		if res.Index >= len(bars) {
			break
		}
		s.processBar(symbol, bars[res.Index], res, &st, &trades)
	}

	if st.inPosition() {
		last := bars[len(bars)-1]
		trades = append(trades, s.close(*st.open, last, ExitEndOfData))
		st.open = nil
	}

	s.logger.Debug("symbol simulation finished",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)-offset),
		zap.Int("trades", len(trades)),
	)
	return trades
}

// processBar applies one bar's state transition. Panics are contained here so
// a transient error on one bar never aborts the symbol's simulation.
func (s *Simulator) processBar(symbol string, bar market.Bar, res signals.BarSignals, st *positionState, trades *[]Trade) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("bar processing failed",
				zap.String("symbol", symbol),
				zap.Int64("timestamp", bar.Timestamp),
				zap.Any("panic", r),
			)
		}
	}()

	if st.inPosition() {
		if trade, closed := s.checkClose(*st.open, bar, res); closed {
			*trades = append(*trades, trade)
			st.open = nil
		}
		return
	}

	for _, sig := range res.Signals {
		if sig.Confidence < s.cfg.MinConfidence {
			continue
		}
		st.open = &Position{
			Symbol:     symbol,
			Direction:  sig.Direction,
			EntryTime:  bar.Timestamp + s.cfg.EntryDelay.Milliseconds(),
			EntryPrice: bar.Close,
		}
		s.logger.Debug("position opened",
			zap.String("symbol", symbol),
			zap.Stringer("direction", sig.Direction),
			zap.String("entry", bar.Close.String()),
		)
		return
	}
}

// checkClose evaluates the close conditions in priority order: opposite
// signal, stop loss, take profit, timeout.
func (s *Simulator) checkClose(pos Position, bar market.Bar, res signals.BarSignals) (Trade, bool) {
	for _, sig := range res.Signals {
		if sig.Direction == pos.Direction.Opposite() {
			return s.close(pos, bar, ExitOppositeSignal), true
		}
	}

	entry := pos.EntryPrice.InexactFloat64()
	current := bar.Close.InexactFloat64()
	var adverse, favorable float64
	if entry > 0 {
		move := (current - entry) / entry
		if pos.Direction == signals.Short {
			move = -move
		}
		favorable = move
		adverse = -move
	}

	if s.cfg.StopLossPercent > 0 && adverse >= s.cfg.StopLossPercent {
		return s.close(pos, bar, ExitStopLoss), true
	}
	if s.cfg.TakeProfitPercent > 0 && favorable >= s.cfg.TakeProfitPercent {
		return s.close(pos, bar, ExitTakeProfit), true
	}
	if s.cfg.MaxHoldDays > 0 {
		held := bar.Time().Sub(pos.At())
		if int(held.Hours()/24) >= s.cfg.MaxHoldDays {
			return s.close(pos, bar, ExitTimeout), true
		}
	}
	return Trade{}, false
}

// close converts a position into a trade against the given bar's close.
func (s *Simulator) close(pos Position, bar market.Bar, reason ExitReason) Trade {
	exit := bar.Close
	var pnl decimal.Decimal
	if pos.Direction == signals.Long {
		pnl = exit.Sub(pos.EntryPrice)
	} else {
		pnl = pos.EntryPrice.Sub(exit)
	}
	pnl = pnl.Sub(s.cfg.Commission)

	var pnlPercent float64
	if entry := pos.EntryPrice.InexactFloat64(); entry > 0 {
		pnlPercent = (exit.InexactFloat64() - entry) / entry * 100
		if pos.Direction == signals.Short {
			pnlPercent = -pnlPercent
		}
	}

	return Trade{
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		EntryTime:  pos.EntryTime,
		ExitTime:   bar.Timestamp,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		ExitReason: reason,
	}
}

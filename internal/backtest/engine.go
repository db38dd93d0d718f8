// Package backtest replays historical bars through the full decision
// pipeline: regime detection, feature extraction, confidence gating, and
// adaptive exit management, feeding realized outcomes back into the
// experience store as it goes.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/confidence"
	"quotrading/internal/exits"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/indicators"
	"quotrading/internal/market"
	"quotrading/internal/regime"
)

// Fraction of the position closed at each partial-profit level.
const partialFraction = 0.25

// Signal is a long entry proposal from the strategy function.
type Signal struct {
	Price float64
}

// SignalFunc inspects the bar history and proposes an entry. The confidence
// gate decides whether the proposal is acted on.
type SignalFunc func(bars []market.Bar) (Signal, bool)

// Trade is one completed backtest position.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	ProfitLoss float64
	PLPercent  float64
	Regime     regime.Regime
	Confidence float64
	ExitReason string // stop, breakeven, trailing, partial, end_of_data
	Partials   []experience.PartialExit
}

// EquityPoint is the account balance after a trade closes.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// RegimePerformance aggregates results per market regime.
type RegimePerformance struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64
	NetProfit   float64
}

// Result holds backtest performance metrics.
type Result struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	SkippedTrades int // Signals rejected by the confidence gate
	WinRate       float64
	TotalProfit   float64
	TotalLoss     float64
	NetProfit     float64
	ROI           float64
	MaxDrawdown   float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64
	SharpeRatio   float64
	Trades        []Trade
	EquityCurve   []EquityPoint
	RegimeStats   map[regime.Regime]*RegimePerformance
}

// openPosition is the in-flight position state during replay.
type openPosition struct {
	entryTime    time.Time
	entryPrice   float64
	quantity     float64 // Remaining open quantity
	initialQty   float64
	risk         float64 // One R in price units
	stop         float64
	atBreakeven  bool
	params       experience.ExitParams
	state        features.Vector
	regime       regime.Regime
	confidence   float64
	partialsDone int
	partials     []experience.PartialExit
	realized     float64 // P&L locked in by partial fills
}

// Engine replays bars through the decision pipeline.
type Engine struct {
	cfg        config.BacktestConfig
	detector   *regime.Detector
	calculator *confidence.Calculator
	exitSource exits.Source
	store      *experience.Store
	exitStore  *experience.ExitStore
	logger     zerolog.Logger
}

// NewEngine creates a backtest engine. The stores are live collaborators:
// every closed trade is appended, so later decisions in the same run learn
// from earlier ones.
func NewEngine(
	cfg config.BacktestConfig,
	detector *regime.Detector,
	calculator *confidence.Calculator,
	exitSource exits.Source,
	store *experience.Store,
	exitStore *experience.ExitStore,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		detector:   detector,
		calculator: calculator,
		exitSource: exitSource,
		store:      store,
		exitStore:  exitStore,
		logger:     logger.With().Str("component", "BacktestEngine").Logger(),
	}
}

// MomentumSignal is the default entry strategy: propose a long when the
// close is above the 20-bar SMA and the previous bar closed up.
func MomentumSignal(bars []market.Bar) (Signal, bool) {
	if len(bars) < 21 {
		return Signal{}, false
	}

	sma := indicators.CalculateSMA(bars, 20)
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	if last.Close > sma && prev.Close > prev.Open {
		return Signal{Price: last.Close}, true
	}
	return Signal{}, false
}

// Run replays the bar series with the given entry strategy. A nil strategy
// uses MomentumSignal.
func (e *Engine) Run(bars []market.Bar, strategy SignalFunc) (*Result, error) {
	if len(bars) <= e.cfg.WarmupBars {
		return nil, fmt.Errorf("need more than %d bars, got %d", e.cfg.WarmupBars, len(bars))
	}
	if strategy == nil {
		strategy = MomentumSignal
	}

	result := &Result{
		RegimeStats: make(map[regime.Regime]*RegimePerformance),
	}

	equity := e.cfg.InitialBalance
	var pos *openPosition

	for i := e.cfg.WarmupBars; i < len(bars); i++ {
		bar := bars[i]
		history := bars[:i+1]

		if pos != nil {
			if closed, trade := e.manageExit(pos, bar); closed {
				equity += trade.ProfitLoss
				e.recordTrade(result, trade, equity)
				pos = nil
			}
		}

		if pos != nil {
			continue
		}

		signal, ok := strategy(history)
		if !ok {
			continue
		}

		currentATR := indicators.CalculateATR(history, 14)
		r := e.detector.Detect(history, currentATR)
		state := features.Extract(history, features.AccountContext{Side: "long"}, r)
		decision := e.calculator.Evaluate(state, e.store)
		if !decision.TakeTrade {
			result.SkippedTrades++
			continue
		}

		pos = e.openTrade(bar, signal, state, r, decision.Confidence, equity)
	}

	if pos != nil {
		last := bars[len(bars)-1]
		trade := e.closeTrade(pos, last.Timestamp(), last.Close, "end_of_data")
		equity += trade.ProfitLoss
		e.recordTrade(result, trade, equity)
	}

	e.finalizeMetrics(result, equity)

	e.logger.Info().
		Int("trades", result.TotalTrades).
		Int("skipped", result.SkippedTrades).
		Float64("net_profit", result.NetProfit).
		Float64("win_rate", result.WinRate).
		Msg("Backtest complete")

	return result, nil
}

func (e *Engine) openTrade(bar market.Bar, signal Signal, state features.Vector, r regime.Regime, conf, equity float64) *openPosition {
	params := e.exitSource.Select(e.cfg.Symbol, r, state)

	risk := state.ATR * params.StopMult
	if risk <= 0 {
		risk = e.cfg.TickSize
	}

	quantity := equity * e.cfg.PositionSize / signal.Price

	return &openPosition{
		entryTime:  bar.Timestamp(),
		entryPrice: signal.Price,
		quantity:   quantity,
		initialQty: quantity,
		risk:       risk,
		stop:       signal.Price - risk,
		params:     params,
		state:      state,
		regime:     r,
		confidence: conf,
	}
}

// manageExit applies one bar of exit management to the open position:
// partial profits at the configured R-multiples, breakeven and trailing stop
// advancement, and stop-out detection. Stops are checked before targets
// within a bar, the conservative fill assumption.
func (e *Engine) manageExit(pos *openPosition, bar market.Bar) (bool, Trade) {
	if bar.Low <= pos.stop {
		reason := "stop"
		if pos.atBreakeven {
			reason = "breakeven"
			if pos.stop > pos.entryPrice {
				reason = "trailing"
			}
		}
		return true, e.closeTrade(pos, bar.Timestamp(), pos.stop, reason)
	}

	levels := []float64{pos.params.Partial1R, pos.params.Partial2R, pos.params.Partial3R}
	for pos.partialsDone < len(levels) {
		target := pos.entryPrice + levels[pos.partialsDone]*pos.risk
		if bar.High < target {
			break
		}

		fillQty := pos.initialQty * partialFraction
		if fillQty > pos.quantity {
			fillQty = pos.quantity
		}
		pos.realized += (target - pos.entryPrice) * fillQty
		pos.quantity -= fillQty
		pos.partials = append(pos.partials, experience.PartialExit{
			RMultiple: levels[pos.partialsDone],
			Fraction:  partialFraction,
			Price:     target,
			Timestamp: bar.Timestamp(),
		})
		pos.partialsDone++

		if pos.quantity <= 0 {
			return true, e.closeTrade(pos, bar.Timestamp(), target, "partial")
		}
	}

	if !pos.atBreakeven && bar.High >= pos.entryPrice+pos.params.BreakevenTicks*e.cfg.TickSize {
		pos.stop = pos.entryPrice
		pos.atBreakeven = true
	}
	if pos.atBreakeven {
		trail := bar.High - pos.params.TrailingTicks*e.cfg.TickSize
		if trail > pos.stop {
			pos.stop = trail
		}
	}

	return false, Trade{}
}

// closeTrade settles the remaining quantity, records the experience feedback,
// and returns the completed trade.
func (e *Engine) closeTrade(pos *openPosition, exitTime time.Time, exitPrice float64, reason string) Trade {
	grossPL := pos.realized + (exitPrice-pos.entryPrice)*pos.quantity
	fees := (pos.entryPrice + exitPrice) * pos.initialQty * e.cfg.Commission
	netPL := grossPL - fees

	trade := Trade{
		EntryTime:  pos.entryTime,
		ExitTime:   exitTime,
		EntryPrice: pos.entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.initialQty,
		ProfitLoss: netPL,
		PLPercent:  (netPL / (pos.entryPrice * pos.initialQty)) * 100,
		Regime:     pos.regime,
		Confidence: pos.confidence,
		ExitReason: reason,
		Partials:   pos.partials,
	}

	duration := exitTime.Sub(pos.entryTime).Seconds()
	e.store.Append(experience.NewExperience(pos.state, true, netPL, duration))
	e.exitStore.Append(experience.NewExitExperience(
		e.cfg.Symbol, pos.regime, pos.state, pos.params, netPL, reason, pos.partials,
	))

	return trade
}

func (e *Engine) recordTrade(result *Result, trade Trade, equity float64) {
	result.Trades = append(result.Trades, trade)
	result.EquityCurve = append(result.EquityCurve, EquityPoint{
		Timestamp: trade.ExitTime,
		Equity:    equity,
	})

	stats, ok := result.RegimeStats[trade.Regime]
	if !ok {
		stats = &RegimePerformance{}
		result.RegimeStats[trade.Regime] = stats
	}
	stats.TotalTrades++
	if trade.ProfitLoss > 0 {
		stats.Wins++
	} else {
		stats.Losses++
	}
	stats.NetProfit += trade.ProfitLoss
	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
}

func (e *Engine) finalizeMetrics(result *Result, finalEquity float64) {
	result.TotalTrades = len(result.Trades)

	for _, trade := range result.Trades {
		if trade.ProfitLoss > 0 {
			result.WinningTrades++
			result.TotalProfit += trade.ProfitLoss
		} else {
			result.LosingTrades++
			result.TotalLoss += math.Abs(trade.ProfitLoss)
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if result.WinningTrades > 0 {
		result.AverageWin = result.TotalProfit / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AverageLoss = result.TotalLoss / float64(result.LosingTrades)
	}

	result.NetProfit = finalEquity - e.cfg.InitialBalance
	result.ROI = result.NetProfit / e.cfg.InitialBalance * 100

	if result.TotalLoss > 0 {
		result.ProfitFactor = result.TotalProfit / result.TotalLoss
	}

	result.MaxDrawdown = maxDrawdown(result.EquityCurve)
	result.SharpeRatio = sharpeRatio(result.Trades)
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	worst := 0.0
	peak := curve[0].Equity
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		drawdown := (peak - point.Equity) / peak * 100
		if drawdown > worst {
			worst = drawdown
		}
	}
	return worst
}

// sharpeRatio is the per-trade return Sharpe with a zero risk-free rate.
func sharpeRatio(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	total := 0.0
	for _, t := range trades {
		total += t.PLPercent
	}
	mean := total / float64(len(trades))

	variance := 0.0
	for _, t := range trades {
		diff := t.PLPercent - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(trades)))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

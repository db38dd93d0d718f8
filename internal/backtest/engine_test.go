package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/confidence"
	"quotrading/internal/exits"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/market"
	"quotrading/internal/regime"
	"quotrading/internal/similarity"
)

func testBacktestConfig() config.BacktestConfig {
	return config.BacktestConfig{
		Symbol:         "MESUSD",
		InitialBalance: 10000,
		PositionSize:   0.10,
		Commission:     0,
		TickSize:       0.25,
		WarmupBars:     50,
	}
}

func testEngine(store *experience.Store, exitStore *experience.ExitStore) *Engine {
	logger := zerolog.Nop()

	detector := regime.NewDetector(config.RegimeConfig{
		MinBars: 34, ATRPeriod: 14,
		HighVolRatio: 1.15, LowVolRatio: 0.85,
		TrendThreshold: 0.60, PriceActionBars: 20,
	}, logger)

	engine := similarity.NewEngine(config.SimilarityConfig{
		RSIWeight: 0.25, VWAPWeight: 0.25, ATRWeight: 0.20,
		VolumeWeight: 0.15, HourWeight: 0.10, StreakWeight: 0.05,
		RSIScale: 100, VWAPScale: 5, ATRScale: 20,
		VolumeScale: 3, HourScale: 24, StreakScale: 10,
	})

	calculator := confidence.NewCalculator(config.ConfidenceConfig{
		Threshold:       0.60,
		MinExperiences:  20,
		MinWinners:      10,
		MinLosers:       10,
		ColdStartValue:  0.65,
		MaxMatches:      20,
		WinRateWeight:   0.9,
		ProfitWeight:    0.1,
		LossRateWeight:  0.4,
		LossSizeWeight:  0.1,
		PnLScale:        300,
		MaxLoserPenalty: 0.5,
	}, engine, logger)

	exitSource := exits.NewPatternSource(config.ExitConfig{
		MinSamples:     5,
		BreakevenTicks: 12,
		TrailingTicks:  16,
		StopMult:       1.5,
		Partial1R:      1,
		Partial2R:      2,
		Partial3R:      3,
	}, exitStore, logger)

	return NewEngine(testBacktestConfig(), detector, calculator, exitSource, store, exitStore, logger)
}

func mkBar(i int, open, high, low, close float64) market.Bar {
	openTime := int64(1700000000000) + int64(i)*60000
	return market.Bar{
		OpenTime:  openTime,
		CloseTime: openTime + 59999,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
		Trades:    100,
	}
}

// flatSeries produces n bars oscillating around price with a fixed range.
func flatSeries(n int, price float64) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = mkBar(i, price, price+0.5, price-0.5, price)
	}
	return bars
}

// signalAt triggers a single long entry when the history reaches length n.
func signalAt(n int) SignalFunc {
	fired := false
	return func(bars []market.Bar) (Signal, bool) {
		if fired || len(bars) != n {
			return Signal{}, false
		}
		fired = true
		return Signal{Price: bars[len(bars)-1].Close}, true
	}
}

func TestRun_InsufficientBars(t *testing.T) {
	engine := testEngine(experience.NewStore(), experience.NewExitStore())

	if _, err := engine.Run(flatSeries(50, 100), nil); err == nil {
		t.Error("Expected error for a series shorter than the warmup")
	}
}

func TestRun_StopLossTrade(t *testing.T) {
	store := experience.NewStore()
	exitStore := experience.NewExitStore()
	engine := testEngine(store, exitStore)

	// Entry at bar 55 (close 100), then a crash bar through the stop.
	bars := flatSeries(56, 100)
	bars = append(bars, mkBar(56, 100, 100.2, 95, 95.5))
	bars = append(bars, flatSeries(3, 95.5)...)

	result, err := engine.Run(bars, signalAt(56))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TotalTrades != 1 {
		t.Fatalf("Expected 1 trade, got %d", result.TotalTrades)
	}

	trade := result.Trades[0]
	if trade.ExitReason != "stop" {
		t.Errorf("Expected stop exit, got %q", trade.ExitReason)
	}
	if trade.ProfitLoss >= 0 {
		t.Errorf("Expected a losing trade, got P&L %f", trade.ProfitLoss)
	}

	// Flat bars have ATR 1.0, so risk = 1.5 and the stop sits at 98.5.
	// Quantity is 10% of 10k at price 100 = 10 units: loss = -15.
	if math.Abs(trade.ProfitLoss-(-15)) > 0.5 {
		t.Errorf("Expected P&L near -15, got %f", trade.ProfitLoss)
	}

	if store.Len() != 1 {
		t.Errorf("Expected 1 experience recorded, got %d", store.Len())
	}
	if exitStore.Len() != 1 {
		t.Errorf("Expected 1 exit experience recorded, got %d", exitStore.Len())
	}
	if result.NetProfit >= 0 {
		t.Errorf("Expected negative net profit, got %f", result.NetProfit)
	}
}

func TestRun_PartialsOnRally(t *testing.T) {
	store := experience.NewStore()
	exitStore := experience.NewExitStore()
	engine := testEngine(store, exitStore)

	// Entry at 100, then a strong rally sweeping all three partial targets
	// (101.5, 103.0, 104.5 with risk 1.5), then a pullback through the
	// trailed stop.
	bars := flatSeries(56, 100)
	bars = append(bars,
		mkBar(56, 100, 102, 100, 101.8),
		mkBar(57, 101.8, 103.6, 101.5, 103.4),
		mkBar(58, 103.4, 105.2, 103.2, 105.0),
		mkBar(59, 105.0, 105.1, 99.0, 99.5),
	)

	result, err := engine.Run(bars, signalAt(56))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TotalTrades != 1 {
		t.Fatalf("Expected 1 trade, got %d", result.TotalTrades)
	}

	trade := result.Trades[0]
	if len(trade.Partials) != 3 {
		t.Fatalf("Expected 3 partial fills, got %d", len(trade.Partials))
	}
	for i, want := range []float64{101.5, 103.0, 104.5} {
		if math.Abs(trade.Partials[i].Price-want) > 1e-9 {
			t.Errorf("Partial %d: expected price %f, got %f", i, want, trade.Partials[i].Price)
		}
	}
	if trade.ProfitLoss <= 0 {
		t.Errorf("Expected a winning trade after three partials, got %f", trade.ProfitLoss)
	}
	if trade.ExitReason != "trailing" {
		t.Errorf("Expected trailing exit after breakeven advance, got %q", trade.ExitReason)
	}

	records := exitStore.ForGroup("MESUSD", trade.Regime)
	if len(records) != 1 || len(records[0].Partials) != 3 {
		t.Errorf("Expected exit experience with 3 partials in the store")
	}
}

func TestRun_ConfidenceGateSkipsEntries(t *testing.T) {
	store := experience.NewStore()
	exitStore := experience.NewExitStore()
	engine := testEngine(store, exitStore)

	// Seed history that drives confidence below the threshold: tiny wins and
	// catastrophic losses. Winner confidence lands near 0.90 while the loser
	// penalty caps at 0.50, leaving roughly 0.40 against a 0.60 threshold.
	for i := 0; i < 10; i++ {
		store.Append(experience.NewExperience(seedState(), true, 1, 60))
	}
	for i := 0; i < 15; i++ {
		store.Append(experience.NewExperience(seedState(), true, -900, 60))
	}

	bars := flatSeries(60, 100)
	result, err := engine.Run(bars, signalAt(56))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TotalTrades != 0 {
		t.Errorf("Expected no trades past the confidence gate, got %d", result.TotalTrades)
	}
	if result.SkippedTrades != 1 {
		t.Errorf("Expected 1 skipped signal, got %d", result.SkippedTrades)
	}
}

func seedState() features.Vector {
	return features.NewVector(features.Vector{
		RSI: 50, VWAPDist: 0, ATR: 1, VolumeRatio: 1, Hour: 12, Streak: 0,
	})
}

func TestMomentumSignal(t *testing.T) {
	// Rising closes above the SMA with an up previous bar.
	bars := make([]market.Bar, 0, 30)
	for i := 0; i < 30; i++ {
		price := 100 + float64(i)*0.5
		bars = append(bars, mkBar(i, price-0.4, price+0.2, price-0.6, price))
	}

	if _, ok := MomentumSignal(bars); !ok {
		t.Error("Expected a long signal on a steady uptrend")
	}

	if _, ok := MomentumSignal(bars[:10]); ok {
		t.Error("Expected no signal with insufficient history")
	}

	// Falling closes below the SMA.
	falling := make([]market.Bar, 0, 30)
	for i := 0; i < 30; i++ {
		price := 100 - float64(i)*0.5
		falling = append(falling, mkBar(i, price+0.4, price+0.6, price-0.2, price))
	}
	if _, ok := MomentumSignal(falling); ok {
		t.Error("Expected no signal on a downtrend")
	}
}

func TestMaxDrawdown(t *testing.T) {
	base := time.Now()
	curve := []EquityPoint{
		{Timestamp: base, Equity: 10000},
		{Timestamp: base.Add(time.Minute), Equity: 11000},
		{Timestamp: base.Add(2 * time.Minute), Equity: 9900},
		{Timestamp: base.Add(3 * time.Minute), Equity: 10500},
	}

	// Peak 11000 to trough 9900 = 10%.
	if got := maxDrawdown(curve); math.Abs(got-10) > 1e-9 {
		t.Errorf("Expected max drawdown 10%%, got %f", got)
	}

	if got := maxDrawdown(nil); got != 0 {
		t.Errorf("Expected zero drawdown for empty curve, got %f", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	if got := sharpeRatio(nil); got != 0 {
		t.Errorf("Expected zero Sharpe for no trades, got %f", got)
	}

	// Identical returns have zero deviation.
	same := []Trade{{PLPercent: 1}, {PLPercent: 1}}
	if got := sharpeRatio(same); got != 0 {
		t.Errorf("Expected zero Sharpe for zero variance, got %f", got)
	}

	mixed := []Trade{{PLPercent: 2}, {PLPercent: -1}, {PLPercent: 2}}
	if got := sharpeRatio(mixed); got <= 0 {
		t.Errorf("Expected positive Sharpe for net-positive returns, got %f", got)
	}
}

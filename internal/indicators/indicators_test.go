package indicators

import (
	"math"
	"testing"

	"quotrading/internal/market"
)

func barsFromCloses(closes ...float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestCalculateSMA(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5)

	if got := CalculateSMA(bars, 5); got != 3 {
		t.Errorf("Expected SMA 3, got %f", got)
	}
	if got := CalculateSMA(bars, 2); got != 4.5 {
		t.Errorf("Expected SMA of last 2 to be 4.5, got %f", got)
	}
	if got := CalculateSMA(bars, 10); got != 0 {
		t.Errorf("Expected 0 for insufficient history, got %f", got)
	}
}

func TestCalculateEMA(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 10, 10)

	// A constant series has EMA equal to the price.
	if got := CalculateEMA(bars, 3); math.Abs(got-10) > 1e-9 {
		t.Errorf("Expected EMA 10 for constant series, got %f", got)
	}
	if got := CalculateEMA(bars, 10); got != 0 {
		t.Errorf("Expected 0 for insufficient history, got %f", got)
	}
}

func TestCalculateRSI(t *testing.T) {
	t.Run("InsufficientHistoryIsNeutral", func(t *testing.T) {
		if got := CalculateRSI(barsFromCloses(1, 2), 14); got != 50 {
			t.Errorf("Expected neutral RSI 50, got %f", got)
		}
	})

	t.Run("AllGainsSaturate", func(t *testing.T) {
		bars := barsFromCloses(1, 2, 3, 4, 5, 6)
		if got := CalculateRSI(bars, 5); got != 100 {
			t.Errorf("Expected RSI 100 for monotone gains, got %f", got)
		}
	})

	t.Run("BalancedMovesAreNeutral", func(t *testing.T) {
		bars := barsFromCloses(10, 11, 10, 11, 10, 11, 10, 11, 10)
		got := CalculateRSI(bars, 8)
		if math.Abs(got-50) > 1 {
			t.Errorf("Expected RSI near 50 for balanced moves, got %f", got)
		}
	})
}

func TestTrueRange(t *testing.T) {
	bar := market.Bar{High: 105, Low: 100, Close: 103}

	// Plain range when the prior close sits inside the bar.
	if got := TrueRange(bar, 102); got != 5 {
		t.Errorf("Expected true range 5, got %f", got)
	}

	// Gap up: distance from the prior close dominates.
	if got := TrueRange(bar, 90); got != 15 {
		t.Errorf("Expected gap-up true range 15, got %f", got)
	}

	// Gap down.
	if got := TrueRange(bar, 120); got != 20 {
		t.Errorf("Expected gap-down true range 20, got %f", got)
	}
}

func TestTrueRanges(t *testing.T) {
	if got := TrueRanges(barsFromCloses(100)); got != nil {
		t.Errorf("Expected nil for a single bar, got %v", got)
	}

	bars := barsFromCloses(100, 100, 100)
	got := TrueRanges(bars)
	if len(got) != 2 {
		t.Fatalf("Expected len(bars)-1 entries, got %d", len(got))
	}
	for i, tr := range got {
		if tr != 1.0 {
			t.Errorf("Entry %d: expected true range 1.0, got %f", i, tr)
		}
	}
}

func TestCalculateATR(t *testing.T) {
	if got := CalculateATR(barsFromCloses(100, 100), 14); got != 0 {
		t.Errorf("Expected 0 for insufficient history, got %f", got)
	}

	bars := barsFromCloses(100, 100, 100, 100, 100, 100)
	if got := CalculateATR(bars, 5); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Expected ATR 1.0 for unit-range bars, got %f", got)
	}
}

func TestAverageTrueRangeOf(t *testing.T) {
	if got := AverageTrueRangeOf(nil, 14); got != 0 {
		t.Errorf("Expected 0 for empty series, got %f", got)
	}

	// Shorter than the period: average the whole series.
	if got := AverageTrueRangeOf([]float64{1, 2, 3}, 14); got != 2 {
		t.Errorf("Expected mean 2 for short series, got %f", got)
	}

	// Longer than the period: only the newest values count.
	if got := AverageTrueRangeOf([]float64{10, 10, 1, 2, 3}, 3); got != 2 {
		t.Errorf("Expected mean of last 3 to be 2, got %f", got)
	}
}

func TestCalculateVWAP(t *testing.T) {
	if got := CalculateVWAP(nil); got != 0 {
		t.Errorf("Expected 0 for empty window, got %f", got)
	}

	bars := []market.Bar{
		{High: 101, Low: 99, Close: 100, Volume: 100},
		{High: 111, Low: 109, Close: 110, Volume: 300},
	}
	// Typical prices 100 and 110, volume-weighted 1:3.
	if got := CalculateVWAP(bars); math.Abs(got-107.5) > 1e-9 {
		t.Errorf("Expected VWAP 107.5, got %f", got)
	}
}

func TestCalculateVWAP_ZeroVolumeFallsBackToMean(t *testing.T) {
	bars := []market.Bar{
		{High: 101, Low: 99, Close: 100, Volume: 0},
		{High: 111, Low: 109, Close: 110, Volume: 0},
	}
	if got := CalculateVWAP(bars); math.Abs(got-105) > 1e-9 {
		t.Errorf("Expected unweighted mean 105 with zero volume, got %f", got)
	}
}

func TestVWAPDistance(t *testing.T) {
	if got := VWAPDistance(nil); got != 0 {
		t.Errorf("Expected 0 for empty window, got %f", got)
	}

	bars := []market.Bar{
		{High: 101, Low: 99, Close: 100, Volume: 100},
		{High: 103, Low: 101, Close: 102, Volume: 100},
	}
	// VWAP is 101, last close 102.
	if got := VWAPDistance(bars); math.Abs(got-1) > 1e-9 {
		t.Errorf("Expected distance +1, got %f", got)
	}
}

func TestVolumeRatio(t *testing.T) {
	if got := VolumeRatio(barsFromCloses(100), 20); got != 1 {
		t.Errorf("Expected 1 for insufficient history, got %f", got)
	}

	bars := barsFromCloses(100, 100, 100, 100)
	bars[3].Volume = 3000 // Prior bars carry 1000 each
	if got := VolumeRatio(bars, 3); math.Abs(got-3) > 1e-9 {
		t.Errorf("Expected volume ratio 3, got %f", got)
	}

	zero := []market.Bar{{Volume: 0}, {Volume: 500}}
	if got := VolumeRatio(zero, 1); got != 1 {
		t.Errorf("Expected 1 when the prior average is zero, got %f", got)
	}
}

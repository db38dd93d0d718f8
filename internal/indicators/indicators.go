// Package indicators provides the technical-indicator math used for regime
// classification and feature extraction.
package indicators

import (
	"math"

	"quotrading/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average of closes.
func CalculateSMA(bars []market.Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}

	sum := 0.0
	startIdx := len(bars) - period

	for i := startIdx; i < len(bars); i++ {
		sum += bars[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average of closes.
func CalculateEMA(bars []market.Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}

	sma := CalculateSMA(bars[:period], period)
	multiplier := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index over closes.
// Returns neutral 50 when there is not enough history.
func CalculateRSI(bars []market.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0

	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// TRUE RANGE / ATR
// ============================================================================

// TrueRange returns the Wilder true range for a bar given the prior close:
// max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar market.Bar, prevClose float64) float64 {
	return math.Max(
		bar.High-bar.Low,
		math.Max(
			math.Abs(bar.High-prevClose),
			math.Abs(bar.Low-prevClose),
		),
	)
}

// TrueRanges returns the true-range series for a bar window. The result has
// len(bars)-1 entries; the first bar only seeds the previous close.
func TrueRanges(bars []market.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}

	ranges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		ranges = append(ranges, TrueRange(bars[i], bars[i-1].Close))
	}
	return ranges
}

// CalculateATR calculates Average True Range as a plain mean of the last
// `period` true ranges.
func CalculateATR(bars []market.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}

	trSum := 0.0
	startIdx := len(bars) - period

	for i := startIdx; i < len(bars); i++ {
		trSum += TrueRange(bars[i], bars[i-1].Close)
	}

	return trSum / float64(period)
}

// AverageTrueRangeOf averages the last `period` values of a true-range
// series, or the whole series when fewer are available. Returns 0 for an
// empty series.
func AverageTrueRangeOf(trueRanges []float64, period int) float64 {
	if len(trueRanges) == 0 {
		return 0
	}
	if len(trueRanges) < period {
		period = len(trueRanges)
	}

	sum := 0.0
	for i := len(trueRanges) - period; i < len(trueRanges); i++ {
		sum += trueRanges[i]
	}
	return sum / float64(period)
}

// ============================================================================
// VWAP
// ============================================================================

// CalculateVWAP calculates the volume-weighted average price over the window
// using the typical price (H+L+C)/3 per bar. Falls back to a plain average of
// typical prices when total volume is zero.
func CalculateVWAP(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}

	var priceVolume, totalVolume float64
	for _, bar := range bars {
		typical := (bar.High + bar.Low + bar.Close) / 3
		priceVolume += typical * bar.Volume
		totalVolume += bar.Volume
	}

	if totalVolume == 0 {
		sum := 0.0
		for _, bar := range bars {
			sum += (bar.High + bar.Low + bar.Close) / 3
		}
		return sum / float64(len(bars))
	}

	return priceVolume / totalVolume
}

// VWAPDistance returns the signed distance of price from the window VWAP in
// price units.
func VWAPDistance(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	vwap := CalculateVWAP(bars)
	if vwap == 0 {
		return 0
	}
	return bars[len(bars)-1].Close - vwap
}

// ============================================================================
// VOLUME ANALYSIS
// ============================================================================

// CalculateAverageVolume calculates average volume over a period.
func CalculateAverageVolume(bars []market.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < period {
		period = len(bars)
	}

	sum := 0.0
	startIdx := len(bars) - period

	for i := startIdx; i < len(bars); i++ {
		sum += bars[i].Volume
	}

	return sum / float64(period)
}

// VolumeRatio returns the newest bar's volume relative to the average of the
// preceding `period` bars. Returns 1 when there is not enough history or the
// average is zero.
func VolumeRatio(bars []market.Bar, period int) float64 {
	if len(bars) < 2 {
		return 1
	}

	avg := CalculateAverageVolume(bars[:len(bars)-1], period)
	if avg == 0 {
		return 1
	}

	return bars[len(bars)-1].Volume / avg
}

package regime

import (
	"math"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/indicators"
	"quotrading/internal/market"
)

// volatility classes derived from the current/baseline ATR ratio.
type volatilityClass int

const (
	volNormal volatilityClass = iota
	volHigh
	volLow
)

// price-action classes derived from the directional-move ratio.
type priceActionClass int

const (
	actionChoppy priceActionClass = iota
	actionTrending
	actionRanging
)

// Detector classifies a bar window into a Regime. Detect is a pure function
// of its inputs; the detector only remembers the previous result so regime
// transitions can be logged.
type Detector struct {
	cfg    config.RegimeConfig
	logger zerolog.Logger
	last   Regime
}

// NewDetector creates a regime detector with the given thresholds.
func NewDetector(cfg config.RegimeConfig, logger zerolog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With().Str("component", "RegimeDetector").Logger(),
		last:   Normal,
	}
}

// Detect classifies the current market window. It never fails: insufficient
// history, zero ranges, and zero ATR all degrade to NORMAL.
//
// bars must be ordered oldest first; currentATR is the live 14-period ATR.
func (d *Detector) Detect(bars []market.Bar, currentATR float64) Regime {
	result := d.classify(bars, currentATR)

	if result != d.last {
		d.logger.Info().
			Str("from", d.last.String()).
			Str("to", result.String()).
			Float64("current_atr", currentATR).
			Int("bars", len(bars)).
			Msg("Regime transition")
		d.last = result
	}

	return result
}

func (d *Detector) classify(bars []market.Bar, currentATR float64) Regime {
	if len(bars) < d.cfg.MinBars {
		return Normal
	}

	baselineATR := d.baselineATR(bars)
	if baselineATR == 0 {
		return Normal
	}

	ratio := currentATR / baselineATR
	vol := volNormal
	if ratio > d.cfg.HighVolRatio {
		vol = volHigh
	} else if ratio < d.cfg.LowVolRatio {
		vol = volLow
	}

	action := d.classifyPriceAction(bars)

	return mapRegime(vol, action)
}

// baselineATR computes the reference ATR from an adaptive lookback window
// that always excludes the most recent ATRPeriod bars (those define "current"
// volatility). With more history available a longer baseline is used: 50 bars
// when >=64 are held, 30 when >=44, otherwise the minimum 20.
func (d *Detector) baselineATR(bars []market.Bar) float64 {
	period := d.cfg.ATRPeriod

	baselineLen := 20
	switch {
	case len(bars) >= 50+period:
		baselineLen = 50
	case len(bars) >= 30+period:
		baselineLen = 30
	}

	end := len(bars) - period
	start := end - baselineLen
	if start < 0 {
		start = 0
	}

	trueRanges := indicators.TrueRanges(bars[start:end])
	return indicators.AverageTrueRangeOf(trueRanges, period)
}

// classifyPriceAction measures how directional the most recent bars are:
// the net close-to-close move as a fraction of the total high-low range.
func (d *Detector) classifyPriceAction(bars []market.Bar) priceActionClass {
	window := d.cfg.PriceActionBars
	if len(bars) < window {
		window = len(bars)
	}
	recent := bars[len(bars)-window:]

	highest := recent[0].High
	lowest := recent[0].Low
	for _, bar := range recent {
		highest = math.Max(highest, bar.High)
		lowest = math.Min(lowest, bar.Low)
	}

	priceRange := highest - lowest
	if priceRange == 0 {
		return actionRanging
	}

	directionalPct := math.Abs(recent[len(recent)-1].Close-recent[0].Close) / priceRange
	if directionalPct > d.cfg.TrendThreshold {
		return actionTrending
	}
	return actionChoppy
}

// mapRegime folds the (volatility, price action) pair into the seven named
// regimes.
func mapRegime(vol volatilityClass, action priceActionClass) Regime {
	switch vol {
	case volHigh:
		if action == actionTrending {
			return HighVolTrending
		}
		return HighVolChoppy
	case volLow:
		if action == actionTrending {
			return LowVolTrending
		}
		return LowVolRanging
	default:
		switch action {
		case actionTrending:
			return NormalTrending
		case actionChoppy:
			return NormalChoppy
		default:
			return Normal
		}
	}
}

// Package regime classifies recent market behavior into one of seven
// volatility/direction regimes.
package regime

// Regime is a discrete label summarizing recent volatility and
// directionality of price action.
type Regime string

const (
	Normal          Regime = "NORMAL"
	NormalTrending  Regime = "NORMAL_TRENDING"
	NormalChoppy    Regime = "NORMAL_CHOPPY"
	HighVolChoppy   Regime = "HIGH_VOL_CHOPPY"
	HighVolTrending Regime = "HIGH_VOL_TRENDING"
	LowVolRanging   Regime = "LOW_VOL_RANGING"
	LowVolTrending  Regime = "LOW_VOL_TRENDING"
)

// All lists every regime the detector can produce.
var All = []Regime{
	Normal,
	NormalTrending,
	NormalChoppy,
	HighVolChoppy,
	HighVolTrending,
	LowVolRanging,
	LowVolTrending,
}

// String returns the regime label.
func (r Regime) String() string {
	return string(r)
}

// Valid reports whether r is one of the seven known regimes.
func (r Regime) Valid() bool {
	for _, known := range All {
		if r == known {
			return true
		}
	}
	return false
}

// Tradeable reports whether entries are allowed in this regime. Regime gating
// was disabled in production after backtests showed the classifier works
// better as a signal feature than as a filter, so every regime is tradeable.
func (r Regime) Tradeable() bool {
	return true
}

// Profile carries the legacy per-regime exit multipliers and timeouts. The
// adaptive exit selector has superseded these numerically; they remain for
// observability and for callers that still display them.
type Profile struct {
	StopMult          float64 `json:"stop_mult"`
	BreakevenMult     float64 `json:"breakeven_mult"`
	TrailingMult      float64 `json:"trailing_mult"`
	SidewaysTimeout   int     `json:"sideways_timeout_min"`
	UnderwaterTimeout int     `json:"underwater_timeout_min"`
}

var profiles = map[Regime]Profile{
	Normal:          {StopMult: 1.0, BreakevenMult: 1.0, TrailingMult: 1.0, SidewaysTimeout: 30, UnderwaterTimeout: 20},
	NormalTrending:  {StopMult: 1.1, BreakevenMult: 1.2, TrailingMult: 1.3, SidewaysTimeout: 45, UnderwaterTimeout: 25},
	NormalChoppy:    {StopMult: 0.9, BreakevenMult: 0.8, TrailingMult: 0.8, SidewaysTimeout: 20, UnderwaterTimeout: 15},
	HighVolChoppy:   {StopMult: 1.4, BreakevenMult: 0.9, TrailingMult: 0.9, SidewaysTimeout: 15, UnderwaterTimeout: 10},
	HighVolTrending: {StopMult: 1.5, BreakevenMult: 1.3, TrailingMult: 1.5, SidewaysTimeout: 40, UnderwaterTimeout: 20},
	LowVolRanging:   {StopMult: 0.8, BreakevenMult: 0.7, TrailingMult: 0.7, SidewaysTimeout: 25, UnderwaterTimeout: 20},
	LowVolTrending:  {StopMult: 0.9, BreakevenMult: 1.1, TrailingMult: 1.2, SidewaysTimeout: 50, UnderwaterTimeout: 30},
}

// ProfileFor returns the legacy parameter profile for a regime, falling back
// to the NORMAL profile for unknown labels.
func ProfileFor(r Regime) Profile {
	if p, ok := profiles[r]; ok {
		return p
	}
	return profiles[Normal]
}

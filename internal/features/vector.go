// Package features builds the market-state vector used as the similarity key
// for experience matching.
package features

import (
	"math"

	"quotrading/internal/regime"
)

// Per-feature defaults substituted when a value is missing or not finite.
// These are the documented fallbacks for partial records loaded from older
// experience schemas.
const (
	DefaultRSI         = 50.0
	DefaultVWAPDist    = 0.0
	DefaultATR         = 1.0
	DefaultVolumeRatio = 1.0
	DefaultHour        = 12.0
	DefaultStreak      = 0.0
)

// Vector is an immutable snapshot of named market features at a decision
// point. Construct it through NewVector or FromMap so missing values pick up
// the documented defaults; never mutate one after construction.
type Vector struct {
	RSI         float64       `json:"rsi"`
	VWAPDist    float64       `json:"vwap_dist"`
	ATR         float64       `json:"atr"`
	VolumeRatio float64       `json:"volume_ratio"`
	Hour        float64       `json:"hour"`
	DayOfWeek   float64       `json:"day_of_week"`
	RecentPnL   float64       `json:"recent_pnl"`
	Streak      float64       `json:"streak"`
	Side        string        `json:"side"`
	Regime      regime.Regime `json:"regime"`
}

// NewVector sanitizes a fully specified vector, replacing non-finite numeric
// fields with their defaults.
func NewVector(v Vector) Vector {
	v.RSI = orDefault(v.RSI, DefaultRSI)
	v.VWAPDist = orDefault(v.VWAPDist, DefaultVWAPDist)
	v.ATR = orDefault(v.ATR, DefaultATR)
	v.VolumeRatio = orDefault(v.VolumeRatio, DefaultVolumeRatio)
	v.Hour = orDefault(v.Hour, DefaultHour)
	v.DayOfWeek = orDefault(v.DayOfWeek, 0)
	v.RecentPnL = orDefault(v.RecentPnL, 0)
	v.Streak = orDefault(v.Streak, DefaultStreak)
	if !v.Regime.Valid() {
		v.Regime = regime.Normal
	}
	return v
}

// FromMap builds a Vector from a loose key/value mapping, as stored by older
// experience schemas. Missing keys take the documented defaults.
func FromMap(values map[string]float64, side string, r regime.Regime) Vector {
	return NewVector(Vector{
		RSI:         getOrDefault(values, "rsi", DefaultRSI),
		VWAPDist:    getOrDefault(values, "vwap_dist", DefaultVWAPDist),
		ATR:         getOrDefault(values, "atr", DefaultATR),
		VolumeRatio: getOrDefault(values, "volume_ratio", DefaultVolumeRatio),
		Hour:        getOrDefault(values, "hour", DefaultHour),
		DayOfWeek:   getOrDefault(values, "day_of_week", 0),
		RecentPnL:   getOrDefault(values, "recent_pnl", 0),
		Streak:      getOrDefault(values, "streak", DefaultStreak),
		Side:        side,
		Regime:      r,
	})
}

func getOrDefault(values map[string]float64, key string, def float64) float64 {
	if v, ok := values[key]; ok {
		return orDefault(v, def)
	}
	return def
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

package features

import (
	"quotrading/internal/indicators"
	"quotrading/internal/market"
	"quotrading/internal/regime"
)

// AccountContext carries the trading-session state folded into the vector
// alongside pure market features.
type AccountContext struct {
	RecentPnL float64 // Realized P&L over the recent session window
	Streak    float64 // Consecutive wins (positive) or losses (negative)
	Side      string  // "long" or "short" for the contemplated entry
}

// Extract builds the decision-point vector from a bar window and account
// context. Indicator fallbacks (neutral RSI, unit ATR) keep the vector usable
// even on thin history.
func Extract(bars []market.Bar, acct AccountContext, r regime.Regime) Vector {
	v := Vector{
		RSI:         DefaultRSI,
		VWAPDist:    DefaultVWAPDist,
		ATR:         DefaultATR,
		VolumeRatio: DefaultVolumeRatio,
		Hour:        DefaultHour,
		RecentPnL:   acct.RecentPnL,
		Streak:      acct.Streak,
		Side:        acct.Side,
		Regime:      r,
	}

	if len(bars) > 0 {
		ts := bars[len(bars)-1].Timestamp().UTC()
		v.Hour = float64(ts.Hour())
		v.DayOfWeek = float64(ts.Weekday())

		v.RSI = indicators.CalculateRSI(bars, 14)
		v.VWAPDist = indicators.VWAPDistance(bars)
		v.VolumeRatio = indicators.VolumeRatio(bars, 20)

		if atr := indicators.CalculateATR(bars, 14); atr > 0 {
			v.ATR = atr
		}
	}

	return NewVector(v)
}

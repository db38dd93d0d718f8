// Package experience holds the append-only record of past trade outcomes
// that the pattern-matching confidence and exit engines learn from.
package experience

import (
	"time"

	"github.com/google/uuid"

	"quotrading/internal/features"
	"quotrading/internal/regime"
)

// parseRegime maps a stored label back to a known regime, defaulting to
// NORMAL for labels from retired schema versions.
func parseRegime(label string) regime.Regime {
	r := regime.Regime(label)
	if !r.Valid() {
		return regime.Normal
	}
	return r
}

// Experience is an immutable record of one entry decision and its realized
// outcome. Records are appended when a trade closes and never edited.
type Experience struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	State     features.Vector `json:"state"`
	TookTrade bool            `json:"took_trade"`
	Reward    float64         `json:"reward"`   // Realized P&L
	Duration  float64         `json:"duration"` // Seconds from entry to exit
}

// NewExperience stamps a record with an ID and timestamp.
func NewExperience(state features.Vector, tookTrade bool, reward, duration float64) Experience {
	return Experience{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		State:     state,
		TookTrade: tookTrade,
		Reward:    reward,
		Duration:  duration,
	}
}

// ExitParams is the exit-management parameter set attached to a position:
// breakeven and trailing thresholds in ticks, a stop multiplier, and three
// partial-profit R-multiples.
type ExitParams struct {
	BreakevenTicks float64 `json:"breakeven_threshold_ticks"`
	TrailingTicks  float64 `json:"trailing_distance_ticks"`
	StopMult       float64 `json:"stop_mult"`
	Partial1R      float64 `json:"partial_1_r"`
	Partial2R      float64 `json:"partial_2_r"`
	Partial3R      float64 `json:"partial_3_r"`
}

// PartialExit records one partial take-profit fill during a trade.
type PartialExit struct {
	RMultiple float64   `json:"r_multiple"`
	Fraction  float64   `json:"fraction"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ExitExperience is an immutable record of how a position was managed and how
// it ended, grouped by (symbol, regime) for parameter learning.
type ExitExperience struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Regime     regime.Regime   `json:"regime"`
	State      features.Vector `json:"state"` // Market state at position open
	Params     ExitParams      `json:"params"`
	PnL        float64         `json:"pnl"`
	ExitReason string          `json:"exit_reason"` // stop, breakeven, trailing, partial, timeout
	Partials   []PartialExit   `json:"partials,omitempty"`
}

// NewExitExperience stamps an exit record with an ID and timestamp.
func NewExitExperience(symbol string, r regime.Regime, state features.Vector, params ExitParams, pnl float64, exitReason string, partials []PartialExit) ExitExperience {
	return ExitExperience{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Symbol:     symbol,
		Regime:     r,
		State:      state,
		Params:     params,
		PnL:        pnl,
		ExitReason: exitReason,
		Partials:   partials,
	}
}

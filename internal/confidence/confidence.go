// Package confidence scores trading signals by matching the live market
// state against past winning and losing experiences.
package confidence

import (
	"fmt"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/similarity"
)

// Decision is the output of one confidence evaluation. Confidence is always
// in [0,1]; Reason distinguishes a computed decision from a safe default so
// downstream logging can tell them apart.
type Decision struct {
	Confidence float64 `json:"confidence"`
	TakeTrade  bool    `json:"take_trade"`
	Reason     string  `json:"reason"`
}

// Calculator implements the dual pattern-matching rule: similarity to past
// winners raises confidence, similarity to past losers applies a capped
// penalty.
type Calculator struct {
	cfg    config.ConfidenceConfig
	engine *similarity.Engine
	logger zerolog.Logger
}

// NewCalculator creates a confidence calculator.
func NewCalculator(cfg config.ConfidenceConfig, engine *similarity.Engine, logger zerolog.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg,
		engine: engine,
		logger: logger.With().Str("component", "ConfidenceCalculator").Logger(),
	}
}

// Evaluate scores the query state against the experience store. It is a
// total function: every input produces a decision, with thin or missing
// history resolving to the optimistic cold-start value rather than an error.
func (c *Calculator) Evaluate(query features.Vector, store *experience.Store) Decision {
	total := store.Len()
	if total < c.cfg.MinExperiences {
		return c.finish(Decision{
			Confidence: c.cfg.ColdStartValue,
			Reason:     fmt.Sprintf("insufficient experience (%d/%d records)", total, c.cfg.MinExperiences),
		})
	}

	winners := store.Winners()
	if len(winners) < c.cfg.MinWinners {
		return c.finish(Decision{
			Confidence: c.cfg.ColdStartValue,
			Reason:     fmt.Sprintf("insufficient winning experience (%d/%d winners)", len(winners), c.cfg.MinWinners),
		})
	}

	similarWinners := c.engine.TopK(query, winners, c.cfg.MaxMatches)

	losers := store.Losers()
	var similarLosers []similarity.Match
	if len(losers) >= c.cfg.MinLosers {
		similarLosers = c.engine.TopK(query, losers, c.cfg.MaxMatches)
	}

	winnerConfidence := c.winnerConfidence(similarWinners)
	loserPenalty := c.loserPenalty(similarLosers)
	final := clamp(winnerConfidence-loserPenalty, 0, 1)

	return c.finish(Decision{
		Confidence: final,
		Reason: fmt.Sprintf(
			"matched %d winners (confidence %.3f) and %d losers (penalty %.3f)",
			len(similarWinners), winnerConfidence, len(similarLosers), loserPenalty,
		),
	})
}

// winnerConfidence blends the win rate among similar winners with their
// average profit, normalized by the configured P&L scale.
func (c *Calculator) winnerConfidence(matches []similarity.Match) float64 {
	if len(matches) == 0 {
		return 0.5
	}

	wins := 0
	totalReward := 0.0
	for _, m := range matches {
		if m.Experience.Reward > 0 {
			wins++
		}
		totalReward += m.Experience.Reward
	}

	winRate := float64(wins) / float64(len(matches))
	avgProfit := totalReward / float64(len(matches))
	profitScore := min(avgProfit/c.cfg.PnLScale, 1.0)

	return clamp(winRate*c.cfg.WinRateWeight+profitScore*c.cfg.ProfitWeight, 0, 1)
}

// loserPenalty blends the loss rate among similar losers with their average
// loss magnitude, capped so loser similarity can reduce but never veto.
func (c *Calculator) loserPenalty(matches []similarity.Match) float64 {
	if len(matches) == 0 {
		return 0
	}

	losses := 0
	totalReward := 0.0
	for _, m := range matches {
		if m.Experience.Reward < 0 {
			losses++
		}
		totalReward += m.Experience.Reward
	}

	lossRate := float64(losses) / float64(len(matches))
	avgLoss := totalReward / float64(len(matches))
	lossScore := min(abs(avgLoss)/c.cfg.PnLScale, 1.0)

	return clamp(lossRate*c.cfg.LossRateWeight+lossScore*c.cfg.LossSizeWeight, 0, c.cfg.MaxLoserPenalty)
}

func (c *Calculator) finish(d Decision) Decision {
	d.Confidence = clamp(d.Confidence, 0, 1)
	d.TakeTrade = d.Confidence >= c.cfg.Threshold

	c.logger.Debug().
		Float64("confidence", d.Confidence).
		Bool("take_trade", d.TakeTrade).
		Str("reason", d.Reason).
		Msg("Confidence evaluated")

	return d
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

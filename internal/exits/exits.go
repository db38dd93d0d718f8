// Package exits selects exit-management parameters for open positions from
// past exit experiences, grouped by symbol and market regime.
package exits

import (
	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/regime"
)

// Source produces the exit parameter set for a position about to be managed.
// Implementations must be total: a parameter set is always returned, never an
// error, because position management cannot block on a missing model.
type Source interface {
	Select(symbol string, r regime.Regime, state features.Vector) experience.ExitParams
}

// PatternSource aggregates stored exit experiences for the requested
// (symbol, regime) group. With too few samples it returns the configured
// global defaults.
type PatternSource struct {
	cfg    config.ExitConfig
	store  *experience.ExitStore
	logger zerolog.Logger
}

// NewPatternSource creates the pattern-matching exit parameter source.
func NewPatternSource(cfg config.ExitConfig, store *experience.ExitStore, logger zerolog.Logger) *PatternSource {
	return &PatternSource{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "ExitPatternSource").Logger(),
	}
}

// Defaults returns the configured global parameter set.
func (s *PatternSource) Defaults() experience.ExitParams {
	return experience.ExitParams{
		BreakevenTicks: s.cfg.BreakevenTicks,
		TrailingTicks:  s.cfg.TrailingTicks,
		StopMult:       s.cfg.StopMult,
		Partial1R:      s.cfg.Partial1R,
		Partial2R:      s.cfg.Partial2R,
		Partial3R:      s.cfg.Partial3R,
	}
}

// Select returns the mean of the stored parameter values for the group, or
// the global defaults when the group has fewer than MinSamples records.
func (s *PatternSource) Select(symbol string, r regime.Regime, state features.Vector) experience.ExitParams {
	group := s.store.ForGroup(symbol, r)
	if len(group) < s.cfg.MinSamples {
		s.logger.Debug().
			Str("symbol", symbol).
			Str("regime", string(r)).
			Int("samples", len(group)).
			Int("min_samples", s.cfg.MinSamples).
			Msg("Insufficient exit samples, using global defaults")
		return s.Defaults()
	}

	var sum experience.ExitParams
	for _, rec := range group {
		sum.BreakevenTicks += rec.Params.BreakevenTicks
		sum.TrailingTicks += rec.Params.TrailingTicks
		sum.StopMult += rec.Params.StopMult
		sum.Partial1R += rec.Params.Partial1R
		sum.Partial2R += rec.Params.Partial2R
		sum.Partial3R += rec.Params.Partial3R
	}

	n := float64(len(group))
	params := experience.ExitParams{
		BreakevenTicks: sum.BreakevenTicks / n,
		TrailingTicks:  sum.TrailingTicks / n,
		StopMult:       sum.StopMult / n,
		Partial1R:      sum.Partial1R / n,
		Partial2R:      sum.Partial2R / n,
		Partial3R:      sum.Partial3R / n,
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Str("regime", string(r)).
		Int("samples", len(group)).
		Float64("breakeven_ticks", params.BreakevenTicks).
		Float64("trailing_ticks", params.TrailingTicks).
		Msg("Selected learned exit parameters")

	return params
}

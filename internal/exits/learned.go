package exits

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"

	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/regime"
)

// paramRange denormalizes one regressor output from [0,1] into real units.
type paramRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// regressorModel is the serialized linear regressor: one weight row and bias
// per output, applied to the normalized feature vector, squashed to [0,1]
// and denormalized through the output range.
type regressorModel struct {
	Version  int                   `json:"version"`
	Features []string              `json:"features"`
	Weights  map[string][]float64  `json:"weights"`
	Biases   map[string]float64    `json:"biases"`
	Ranges   map[string]paramRange `json:"ranges"`
}

// Output names in the serialized model.
const (
	outBreakeven = "breakeven_ticks"
	outTrailing  = "trailing_ticks"
	outStopMult  = "stop_mult"
	outPartial1  = "partial_1_r"
	outPartial2  = "partial_2_r"
	outPartial3  = "partial_3_r"
)

// LearnedSource scores exit parameters with a serialized regressor. It is a
// supplementary path: any load or inference problem falls back to the
// pattern-matching source, so enabling it can never make exits worse than
// the learned-aggregate behavior.
type LearnedSource struct {
	model    *regressorModel
	fallback Source
	logger   zerolog.Logger
}

// NewLearnedSource loads the model file. A missing or malformed file returns
// an error so the caller can decide to run pattern-only.
func NewLearnedSource(path string, fallback Source, logger zerolog.Logger) (*LearnedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exit model: %w", err)
	}

	var model regressorModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode exit model: %w", err)
	}
	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("invalid exit model %s: %w", path, err)
	}

	return &LearnedSource{
		model:    &model,
		fallback: fallback,
		logger:   logger.With().Str("component", "ExitLearnedSource").Logger(),
	}, nil
}

func (m *regressorModel) validate() error {
	if len(m.Features) == 0 {
		return fmt.Errorf("no input features declared")
	}
	for _, out := range []string{outBreakeven, outTrailing, outStopMult, outPartial1, outPartial2, outPartial3} {
		weights, ok := m.Weights[out]
		if !ok {
			return fmt.Errorf("missing weights for output %q", out)
		}
		if len(weights) != len(m.Features) {
			return fmt.Errorf("output %q has %d weights for %d features", out, len(weights), len(m.Features))
		}
		r, ok := m.Ranges[out]
		if !ok {
			return fmt.Errorf("missing range for output %q", out)
		}
		if r.Max <= r.Min {
			return fmt.Errorf("output %q has empty range [%f, %f]", out, r.Min, r.Max)
		}
	}
	return nil
}

// Select runs the regressor over the normalized state features. Unknown
// feature names or non-finite outputs abandon the learned path for this call.
func (s *LearnedSource) Select(symbol string, r regime.Regime, state features.Vector) experience.ExitParams {
	inputs, err := s.featureInputs(state)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Exit model feature extraction failed, using pattern source")
		return s.fallback.Select(symbol, r, state)
	}

	params := experience.ExitParams{}
	outputs := []struct {
		name string
		dst  *float64
	}{
		{outBreakeven, &params.BreakevenTicks},
		{outTrailing, &params.TrailingTicks},
		{outStopMult, &params.StopMult},
		{outPartial1, &params.Partial1R},
		{outPartial2, &params.Partial2R},
		{outPartial3, &params.Partial3R},
	}

	for _, out := range outputs {
		value := s.model.Biases[out.name]
		for i, w := range s.model.Weights[out.name] {
			value += w * inputs[i]
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			s.logger.Warn().Str("output", out.name).Msg("Exit model produced non-finite output, using pattern source")
			return s.fallback.Select(symbol, r, state)
		}

		rng := s.model.Ranges[out.name]
		normalized := sigmoid(value)
		*out.dst = rng.Min + normalized*(rng.Max-rng.Min)
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Str("regime", string(r)).
		Float64("breakeven_ticks", params.BreakevenTicks).
		Float64("trailing_ticks", params.TrailingTicks).
		Msg("Selected model exit parameters")

	return params
}

// featureInputs maps declared feature names onto normalized state values in
// model order.
func (s *LearnedSource) featureInputs(state features.Vector) ([]float64, error) {
	inputs := make([]float64, len(s.model.Features))
	for i, name := range s.model.Features {
		switch name {
		case "rsi":
			inputs[i] = state.RSI / 100
		case "vwap_dist":
			inputs[i] = state.VWAPDist
		case "atr":
			inputs[i] = state.ATR
		case "volume_ratio":
			inputs[i] = state.VolumeRatio
		case "hour":
			inputs[i] = state.Hour / 24
		case "day_of_week":
			inputs[i] = state.DayOfWeek / 7
		case "streak":
			inputs[i] = state.Streak / 10
		case "recent_pnl":
			inputs[i] = state.RecentPnL / 300
		default:
			return nil, fmt.Errorf("unknown model feature %q", name)
		}
	}
	return inputs, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

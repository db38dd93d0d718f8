package confidence

import (
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/similarity"
)

func testConfig() config.ConfidenceConfig {
	return config.ConfidenceConfig{
		Threshold:       0.60,
		MinExperiences:  20,
		MinWinners:      10,
		MinLosers:       10,
		ColdStartValue:  0.65,
		MaxMatches:      20,
		WinRateWeight:   0.9,
		ProfitWeight:    0.1,
		LossRateWeight:  0.4,
		LossSizeWeight:  0.1,
		PnLScale:        300,
		MaxLoserPenalty: 0.5,
	}
}

func testCalculator() *Calculator {
	engine := similarity.NewEngine(config.SimilarityConfig{
		RSIWeight: 0.25, VWAPWeight: 0.25, ATRWeight: 0.20,
		VolumeWeight: 0.15, HourWeight: 0.10, StreakWeight: 0.05,
		RSIScale: 100, VWAPScale: 5, ATRScale: 20,
		VolumeScale: 3, HourScale: 24, StreakScale: 10,
	})
	return NewCalculator(testConfig(), engine, zerolog.Nop())
}

func neutralState() features.Vector {
	return features.NewVector(features.Vector{
		RSI: 50, VWAPDist: 0, ATR: 1, VolumeRatio: 1, Hour: 12, Streak: 0,
	})
}

func storeWith(rewards ...float64) *experience.Store {
	store := experience.NewStore()
	for _, reward := range rewards {
		store.Append(experience.Experience{
			State:     neutralState(),
			TookTrade: true,
			Reward:    reward,
		})
	}
	return store
}

// repeat builds a reward slice of n copies of value.
func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestEvaluate_EmptyStoreColdStart(t *testing.T) {
	calc := testCalculator()

	d := calc.Evaluate(neutralState(), experience.NewStore())

	if d.Confidence != 0.65 {
		t.Errorf("Expected cold-start confidence 0.65, got %f", d.Confidence)
	}
	if !d.TakeTrade {
		t.Error("Expected cold-start confidence to clear the 0.60 threshold")
	}
	if !strings.Contains(d.Reason, "insufficient") {
		t.Errorf("Expected an insufficient-data rationale, got %q", d.Reason)
	}
}

func TestEvaluate_BelowMinExperiences(t *testing.T) {
	calc := testCalculator()
	store := storeWith(repeat(100, 19)...)

	d := calc.Evaluate(neutralState(), store)
	if d.Confidence != 0.65 {
		t.Errorf("Expected cold-start value with 19 records, got %f", d.Confidence)
	}
}

func TestEvaluate_InsufficientWinners(t *testing.T) {
	calc := testCalculator()

	// 25 records but only 9 winners.
	rewards := append(repeat(100, 9), repeat(-50, 16)...)
	store := storeWith(rewards...)

	d := calc.Evaluate(neutralState(), store)
	if d.Confidence != 0.65 {
		t.Errorf("Expected cold-start value with 9 winners, got %f", d.Confidence)
	}
	if !strings.Contains(d.Reason, "winning") {
		t.Errorf("Expected an insufficient-winners rationale, got %q", d.Reason)
	}
}

func TestEvaluate_DualMatchingArithmetic(t *testing.T) {
	calc := testCalculator()

	// 15 winners averaging +150 and 12 losers averaging -200. Matched winners
	// all have positive reward, so:
	//   winner_confidence = 1.0*0.9 + min(150/300, 1)*0.1 = 0.95
	//   loser_penalty     = 1.0*0.4 + min(200/300, 1)*0.1 = 0.466...
	//   final             = 0.95 - 0.466... = 0.4833...
	rewards := append(repeat(150, 15), repeat(-200, 12)...)
	store := storeWith(rewards...)

	d := calc.Evaluate(neutralState(), store)

	expected := 0.95 - (0.4 + (200.0/300.0)*0.1)
	if math.Abs(d.Confidence-expected) > 1e-9 {
		t.Errorf("Expected confidence %.6f, got %.6f", expected, d.Confidence)
	}
	if d.TakeTrade {
		t.Error("Expected confidence below 0.60 threshold to reject the trade")
	}
}

func TestEvaluate_FewLosersSkipPenalty(t *testing.T) {
	calc := testCalculator()

	// 9 losers is below the minimum, so no penalty applies.
	rewards := append(repeat(150, 15), repeat(-200, 9)...)
	store := storeWith(rewards...)

	d := calc.Evaluate(neutralState(), store)

	expected := 0.95 // winner confidence only
	if math.Abs(d.Confidence-expected) > 1e-9 {
		t.Errorf("Expected confidence %.6f without loser penalty, got %.6f", expected, d.Confidence)
	}
	if !d.TakeTrade {
		t.Error("Expected confidence above threshold to take the trade")
	}
}

func TestEvaluate_LoserPenaltyCapped(t *testing.T) {
	calc := testCalculator()

	// Catastrophic losers: raw penalty 1.0*0.4 + min(900/300,1)*0.1 = 0.5,
	// exactly at the cap. Winner confidence 1.0*0.9 + 1.0*0.1 = 1.0.
	rewards := append(repeat(400, 15), repeat(-900, 12)...)
	store := storeWith(rewards...)

	d := calc.Evaluate(neutralState(), store)

	if math.Abs(d.Confidence-0.5) > 1e-9 {
		t.Errorf("Expected capped penalty to yield confidence 0.5, got %.6f", d.Confidence)
	}
}

func TestEvaluate_ProfitScoreSaturates(t *testing.T) {
	calc := testCalculator()

	// Average profit far above the scale saturates the profit term at 1.0.
	rewards := append(repeat(5000, 15), repeat(-10, 12)...)
	store := storeWith(rewards...)

	d := calc.Evaluate(neutralState(), store)

	// winner_confidence = 0.9 + 0.1 = 1.0; penalty = 0.4 + (10/300)*0.1
	expected := 1.0 - (0.4 + (10.0/300.0)*0.1)
	if math.Abs(d.Confidence-expected) > 1e-9 {
		t.Errorf("Expected confidence %.6f, got %.6f", expected, d.Confidence)
	}
}

func TestEvaluate_ConfidenceAlwaysInRange(t *testing.T) {
	calc := testCalculator()
	query := neutralState()

	stores := []*experience.Store{
		experience.NewStore(),
		storeWith(repeat(1e9, 25)...),
		storeWith(append(repeat(0.01, 15), repeat(-1e9, 15)...)...),
		storeWith(append(repeat(300, 10), repeat(-300, 15)...)...),
	}

	for i, store := range stores {
		d := calc.Evaluate(query, store)
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("Store %d: confidence %f outside [0,1]", i, d.Confidence)
		}
		if d.Reason == "" {
			t.Errorf("Store %d: expected a non-empty rationale", i)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	calc := testCalculator()
	query := neutralState()
	store := storeWith(append(repeat(150, 15), repeat(-200, 12)...)...)

	first := calc.Evaluate(query, store)
	second := calc.Evaluate(query, store)

	if first.Confidence != second.Confidence || first.TakeTrade != second.TakeTrade {
		t.Errorf("Expected identical decisions on repeated evaluation: %+v vs %+v", first, second)
	}
}

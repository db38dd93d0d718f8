package similarity

import (
	"math"
	"math/rand"
	"testing"

	"quotrading/config"
	"quotrading/internal/experience"
	"quotrading/internal/features"
)

func testEngine() *Engine {
	return NewEngine(config.SimilarityConfig{
		RSIWeight: 0.25, VWAPWeight: 0.25, ATRWeight: 0.20,
		VolumeWeight: 0.15, HourWeight: 0.10, StreakWeight: 0.05,
		RSIScale: 100, VWAPScale: 5, ATRScale: 20,
		VolumeScale: 3, HourScale: 24, StreakScale: 10,
	})
}

func vectorWith(rsi float64) features.Vector {
	return features.NewVector(features.Vector{
		RSI: rsi, VWAPDist: 0, ATR: 1, VolumeRatio: 1, Hour: 12, Streak: 0,
	})
}

func experienceWith(rsi, reward float64) experience.Experience {
	return experience.Experience{State: vectorWith(rsi), Reward: reward, TookTrade: true}
}

func TestScore_IdenticalVectorsAreZero(t *testing.T) {
	engine := testEngine()
	v := vectorWith(55)

	if score := engine.Score(v, v); score != 0 {
		t.Errorf("Expected zero distance for identical vectors, got %f", score)
	}
}

func TestScore_WeightedFormula(t *testing.T) {
	engine := testEngine()

	query := features.Vector{RSI: 60, VWAPDist: 2, ATR: 5, VolumeRatio: 1.5, Hour: 10, Streak: 2}
	candidate := features.Vector{RSI: 50, VWAPDist: 0, ATR: 1, VolumeRatio: 1, Hour: 12, Streak: 0}

	// 0.25*10/100 + 0.25*2/5 + 0.20*4/20 + 0.15*0.5/3 + 0.10*2/24 + 0.05*2/10
	expected := 0.025 + 0.1 + 0.04 + 0.025 + 0.1/12 + 0.01

	if got := engine.Score(query, candidate); math.Abs(got-expected) > 1e-12 {
		t.Errorf("Expected score %.10f, got %.10f", expected, got)
	}
}

func TestScore_MissingStreakUsesDefault(t *testing.T) {
	engine := testEngine()

	// A query built from a partial mapping substitutes streak=0 and must
	// still produce a finite score.
	query := features.FromMap(map[string]float64{"rsi": 60}, "long", "NORMAL")
	candidate := vectorWith(50)

	score := engine.Score(query, candidate)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		t.Fatalf("Expected finite score, got %f", score)
	}
	if query.Streak != 0 {
		t.Errorf("Expected default streak 0, got %f", query.Streak)
	}
}

func TestTopK_EmptyCandidates(t *testing.T) {
	engine := testEngine()

	if got := engine.TopK(vectorWith(50), nil, 10); len(got) != 0 {
		t.Errorf("Expected empty result for empty candidates, got %d matches", len(got))
	}
}

func TestTopK_OrderedMostSimilarFirst(t *testing.T) {
	engine := testEngine()
	query := vectorWith(50)

	candidates := []experience.Experience{
		experienceWith(90, 10),
		experienceWith(52, 20),
		experienceWith(70, 30),
		experienceWith(50, 40),
	}

	matches := engine.TopK(query, candidates, 4)
	if len(matches) != 4 {
		t.Fatalf("Expected 4 matches, got %d", len(matches))
	}

	for i := 1; i < len(matches); i++ {
		if matches[i].Score < matches[i-1].Score {
			t.Errorf("Matches out of order at %d: %f < %f", i, matches[i].Score, matches[i-1].Score)
		}
	}
	if matches[0].Experience.Reward != 40 {
		t.Errorf("Expected the exact-RSI candidate first, got reward %f", matches[0].Experience.Reward)
	}
}

func TestTopK_TruncatesToMaxResults(t *testing.T) {
	engine := testEngine()
	query := vectorWith(50)

	var candidates []experience.Experience
	for i := 0; i < 50; i++ {
		candidates = append(candidates, experienceWith(float64(30+i), float64(i)))
	}

	matches := engine.TopK(query, candidates, 10)
	if len(matches) != 10 {
		t.Errorf("Expected 10 matches, got %d", len(matches))
	}
}

func TestTopK_PermutationInvariantSet(t *testing.T) {
	engine := testEngine()
	query := vectorWith(50)

	var candidates []experience.Experience
	for i := 0; i < 30; i++ {
		candidates = append(candidates, experienceWith(float64(20+2*i), float64(i+1)))
	}

	baseline := engine.TopK(query, candidates, 10)
	baselineSet := make(map[float64]bool)
	for _, m := range baseline {
		baselineSet[m.Experience.Reward] = true
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]experience.Experience, len(candidates))
		copy(shuffled, candidates)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		matches := engine.TopK(query, shuffled, 10)
		if len(matches) != len(baseline) {
			t.Fatalf("Trial %d: expected %d matches, got %d", trial, len(baseline), len(matches))
		}
		for _, m := range matches {
			if !baselineSet[m.Experience.Reward] {
				t.Errorf("Trial %d: unexpected candidate with reward %f in top-K", trial, m.Experience.Reward)
			}
		}
	}
}

func TestTopK_StableTieBreak(t *testing.T) {
	engine := testEngine()
	query := vectorWith(50)

	// Three identical candidates distinguished only by reward: stable sort
	// must keep input order among exact ties.
	candidates := []experience.Experience{
		experienceWith(55, 1),
		experienceWith(55, 2),
		experienceWith(55, 3),
	}

	matches := engine.TopK(query, candidates, 3)
	for i, want := range []float64{1, 2, 3} {
		if matches[i].Experience.Reward != want {
			t.Errorf("Tie-break broke input order at %d: got reward %f", i, matches[i].Experience.Reward)
		}
	}
}

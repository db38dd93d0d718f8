// Package similarity ranks stored experiences by weighted feature distance
// from a live market state.
package similarity

import (
	"math"
	"sort"

	"quotrading/config"
	"quotrading/internal/experience"
	"quotrading/internal/features"
)

// Match pairs an experience with its distance score; lower is more similar.
type Match struct {
	Experience experience.Experience
	Score      float64
}

// Engine computes the fixed weighted-distance ranking. The weights and scale
// denominators are domain priors carried in configuration; changing them
// changes every downstream confidence number, so they are injected rather
// than hard-coded.
type Engine struct {
	cfg config.SimilarityConfig
}

// NewEngine creates a similarity engine with the given weights and scales.
func NewEngine(cfg config.SimilarityConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score returns the weighted distance between two state vectors. Each
// feature delta is normalized by its domain scale before weighting.
func (e *Engine) Score(query, candidate features.Vector) float64 {
	c := e.cfg
	return c.RSIWeight*math.Abs(query.RSI-candidate.RSI)/c.RSIScale +
		c.VWAPWeight*math.Abs(query.VWAPDist-candidate.VWAPDist)/c.VWAPScale +
		c.ATRWeight*math.Abs(query.ATR-candidate.ATR)/c.ATRScale +
		c.VolumeWeight*math.Abs(query.VolumeRatio-candidate.VolumeRatio)/c.VolumeScale +
		c.HourWeight*math.Abs(query.Hour-candidate.Hour)/c.HourScale +
		c.StreakWeight*math.Abs(query.Streak-candidate.Streak)/c.StreakScale
}

// TopK returns up to maxResults candidates ordered most-similar first.
// Scoring is a single pass over the candidate slice; ties keep the original
// candidate order. An empty candidate set yields an empty result.
func (e *Engine) TopK(query features.Vector, candidates []experience.Experience, maxResults int) []Match {
	if len(candidates) == 0 || maxResults <= 0 {
		return nil
	}

	scored := make([]Match, len(candidates))
	for i, candidate := range candidates {
		scored[i] = Match{
			Experience: candidate,
			Score:      e.Score(query, candidate.State),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score < scored[j].Score
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}

package experiment

import (
	"math"
	"time"
)

// EpisodeStats summarizes a finished episode.
type EpisodeStats struct {
	EpisodeID    string
	Index        int
	Agents       []string
	Rounds       int
	FinalUtility []float64
	// MeanPayoff and StdDevPayoff are per player, over rounds.
	MeanPayoff      []float64
	StdDevPayoff    []float64
	EquilibriumRate float64
	Failures        int
	RoutingMisses   int
	Duration        time.Duration
}

// Summarize computes statistics over the rounds of ep.
func Summarize(ep Episode, rounds []Round, duration time.Duration) EpisodeStats {
	n := len(ep.Agents)
	s := EpisodeStats{
		EpisodeID:    ep.ID,
		Index:        ep.Index,
		Agents:       append([]string(nil), ep.Agents...),
		Rounds:       len(rounds),
		FinalUtility: make([]float64, n),
		MeanPayoff:   make([]float64, n),
		StdDevPayoff: make([]float64, n),
		Duration:     duration,
	}
	if len(rounds) == 0 {
		return s
	}

	hits := 0
	for _, r := range rounds {
		if r.Equilibrium {
			hits++
		}
		s.Failures += len(r.Failures)
		s.RoutingMisses += r.RoutingMisses
		for p := 0; p < n && p < len(r.Payoffs); p++ {
			s.MeanPayoff[p] += r.Payoffs[p]
		}
	}
	copy(s.FinalUtility, rounds[len(rounds)-1].Cumulative)
	s.EquilibriumRate = float64(hits) / float64(len(rounds))

	for p := range s.MeanPayoff {
		s.MeanPayoff[p] /= float64(len(rounds))
	}
	for p := range s.StdDevPayoff {
		var sumSquares float64
		for _, r := range rounds {
			if p < len(r.Payoffs) {
				diff := r.Payoffs[p] - s.MeanPayoff[p]
				sumSquares += diff * diff
			}
		}
		s.StdDevPayoff[p] = math.Sqrt(sumSquares / float64(len(rounds)))
	}
	return s
}

package payoff

import (
	"fmt"
	"math/rand"

	"github.com/nordbyerik/gaims/pkg/core"
)

// Generator draws a payoff model. Game states call Generate on construction
// and on every reset.
type Generator interface {
	Name() string
	Generate(rng *rand.Rand) (*Model, error)
}

// Random draws integer payoffs uniformly from the inclusive range [Min, Max].
type Random struct {
	NumActions int
	NumPlayers int
	Min        int
	Max        int
}

// NewRandom validates the parameters of a random generator.
func NewRandom(numActions, numPlayers, min, max int) (*Random, error) {
	if numActions <= 0 {
		return nil, fmt.Errorf("%w: number of actions must be positive", core.ErrConstruction)
	}
	if numPlayers <= 0 {
		return nil, fmt.Errorf("%w: number of players must be positive", core.ErrConstruction)
	}
	if min >= max {
		return nil, fmt.Errorf("%w: min payoff %d must be less than max payoff %d", core.ErrConstruction, min, max)
	}
	return &Random{NumActions: numActions, NumPlayers: numPlayers, Min: min, Max: max}, nil
}

func (g *Random) Name() string { return "random" }

func (g *Random) Generate(rng *rand.Rand) (*Model, error) {
	if _, err := NewRandom(g.NumActions, g.NumPlayers, g.Min, g.Max); err != nil {
		return nil, err
	}
	flat := make([]float64, g.NumActions*g.NumActions*g.NumPlayers)
	for k := range flat {
		flat[k] = float64(g.Min + rng.Intn(g.Max-g.Min+1))
	}
	return FromFlat(g.NumActions, g.NumPlayers, flat)
}

// Fixed hands back the same payoffs on every draw.
type Fixed struct {
	model *Model
}

func NewFixed(m *Model) *Fixed {
	return &Fixed{model: m}
}

func (g *Fixed) Name() string { return "fixed" }

// Generate returns a fresh Model over the same payoffs so that each episode
// gets its own equilibria cache.
func (g *Fixed) Generate(_ *rand.Rand) (*Model, error) {
	if g.model == nil {
		return nil, fmt.Errorf("%w: fixed generator has no payoffs", core.ErrConstruction)
	}
	return New(g.model.numActions, g.model.numPlayers, g.model.payoffs)
}

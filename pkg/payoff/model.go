// Package payoff models normal-form matrix games: payoff arrays, their
// pure-strategy Nash equilibria and generators for random and canonical games.
package payoff

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/nordbyerik/gaims/pkg/core"
)

// Model is an immutable normal-form payoff structure of shape
// [numActions][numActions][numPlayers]. payoffs[i][j][p] is player p's payoff
// when the row player plays i and the column player plays j.
//
// Replacing the payoffs means building a new Model, so the equilibria cache
// never outlives the payoffs it was derived from.
type Model struct {
	numActions int
	numPlayers int
	payoffs    [][][]float64

	once       sync.Once
	equilibria []core.Profile
}

// New validates the shape of payoffs and returns a Model holding a copy.
func New(numActions, numPlayers int, payoffs [][][]float64) (*Model, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("%w: numActions must be >= 1, got %d", core.ErrConstruction, numActions)
	}
	if numPlayers < 1 {
		return nil, fmt.Errorf("%w: numPlayers must be >= 1, got %d", core.ErrConstruction, numPlayers)
	}
	if len(payoffs) != numActions {
		return nil, fmt.Errorf("%w: payoffs have %d rows, want %d", core.ErrConstruction, len(payoffs), numActions)
	}

	cp := make([][][]float64, numActions)
	for i, row := range payoffs {
		if len(row) != numActions {
			return nil, fmt.Errorf("%w: payoff row %d has %d columns, want %d", core.ErrConstruction, i, len(row), numActions)
		}
		cp[i] = make([][]float64, numActions)
		for j, cell := range row {
			if len(cell) != numPlayers {
				return nil, fmt.Errorf("%w: payoff cell (%d, %d) has %d entries, want %d", core.ErrConstruction, i, j, len(cell), numPlayers)
			}
			for p, v := range cell {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: payoff (%d, %d, %d) is not finite", core.ErrConstruction, i, j, p)
				}
			}
			cp[i][j] = append([]float64(nil), cell...)
		}
	}

	return &Model{
		numActions: numActions,
		numPlayers: numPlayers,
		payoffs:    cp,
	}, nil
}

// FromFlat builds a Model from a row-major flattening of the payoff array.
func FromFlat(numActions, numPlayers int, flat []float64) (*Model, error) {
	if numActions < 1 || numPlayers < 1 {
		return nil, fmt.Errorf("%w: invalid shape [%d, %d, %d]", core.ErrConstruction, numActions, numActions, numPlayers)
	}
	if want := numActions * numActions * numPlayers; len(flat) != want {
		return nil, fmt.Errorf("%w: got %d payoffs, want %d", core.ErrConstruction, len(flat), want)
	}
	payoffs := make([][][]float64, numActions)
	k := 0
	for i := range payoffs {
		payoffs[i] = make([][]float64, numActions)
		for j := range payoffs[i] {
			payoffs[i][j] = flat[k : k+numPlayers]
			k += numPlayers
		}
	}
	return New(numActions, numPlayers, payoffs)
}

func (m *Model) NumActions() int { return m.numActions }
func (m *Model) NumPlayers() int { return m.numPlayers }

// Payoff returns player's payoff for the profile (row, col).
func (m *Model) Payoff(row, col, player int) float64 {
	return m.payoffs[row][col][player]
}

// Vector returns a copy of the payoff vector for the profile (row, col).
func (m *Model) Vector(row, col int) []float64 {
	return append([]float64(nil), m.payoffs[row][col]...)
}

// Payoffs returns a deep copy of the payoff array.
func (m *Model) Payoffs() [][][]float64 {
	out := make([][][]float64, m.numActions)
	for i := range m.payoffs {
		out[i] = make([][]float64, m.numActions)
		for j := range m.payoffs[i] {
			out[i][j] = append([]float64(nil), m.payoffs[i][j]...)
		}
	}
	return out
}

// Equilibria returns the pure-strategy Nash equilibria, computing them on
// first use.
func (m *Model) Equilibria() []core.Profile {
	m.once.Do(func() {
		m.equilibria = FindEquilibria(m.payoffs)
	})
	return append([]core.Profile(nil), m.equilibria...)
}

// IsEquilibrium reports whether (row, col) is a pure-strategy equilibrium.
func (m *Model) IsEquilibrium(row, col int) bool {
	for _, eq := range m.Equilibria() {
		if eq.Row == row && eq.Col == col {
			return true
		}
	}
	return false
}

// String renders the payoff matrix as a table of payoff vectors.
func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Matrix game with %d players and %d actions per player\n", m.numPlayers, m.numActions)
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "\t")
	for j := 0; j < m.numActions; j++ {
		fmt.Fprintf(tw, "col %d\t", j)
	}
	fmt.Fprintln(tw)
	for i := 0; i < m.numActions; i++ {
		fmt.Fprintf(tw, "row %d\t", i)
		for j := 0; j < m.numActions; j++ {
			fmt.Fprintf(tw, "%s\t", formatVector(m.payoffs[i][j]))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	return b.String()
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

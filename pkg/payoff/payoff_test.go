package payoff

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nordbyerik/gaims/pkg/core"
)

func TestFindEquilibria(t *testing.T) {
	t.Run("prisoners dilemma has a single defect equilibrium", func(t *testing.T) {
		payoffs := [][][]float64{
			{{3, 3}, {0, 5}},
			{{5, 0}, {1, 1}},
		}
		got := FindEquilibria(payoffs)
		want := []core.Profile{{Row: 1, Col: 1}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FindEquilibria() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("coordination game has two equilibria", func(t *testing.T) {
		payoffs := [][][]float64{
			{{2, 2}, {0, 0}},
			{{0, 0}, {1, 1}},
		}
		want := []core.Profile{{Row: 0, Col: 0}, {Row: 1, Col: 1}}
		if diff := cmp.Diff(want, FindEquilibria(payoffs)); diff != "" {
			t.Errorf("FindEquilibria() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("matching pennies has none", func(t *testing.T) {
		payoffs := [][][]float64{
			{{1, -1}, {-1, 1}},
			{{-1, 1}, {1, -1}},
		}
		if got := FindEquilibria(payoffs); len(got) != 0 {
			t.Errorf("FindEquilibria() = %v, want none", got)
		}
	})

	t.Run("ties are weak best responses", func(t *testing.T) {
		payoffs := [][][]float64{
			{{1, 1}, {1, 1}},
			{{1, 1}, {1, 1}},
		}
		if got := FindEquilibria(payoffs); len(got) != 4 {
			t.Errorf("FindEquilibria() returned %d profiles, want 4", len(got))
		}
	})

	t.Run("single player has no equilibria", func(t *testing.T) {
		payoffs := [][][]float64{{{1}}}
		if got := FindEquilibria(payoffs); got != nil {
			t.Errorf("FindEquilibria() = %v, want nil", got)
		}
	})
}

// bruteForce checks every unilateral deviation independently of nash.go.
func bruteForce(m *Model) map[core.Profile]bool {
	out := map[core.Profile]bool{}
	n := m.NumActions()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			stable := true
			for k := 0; k < n; k++ {
				if m.Payoff(k, j, 0) > m.Payoff(i, j, 0) || m.Payoff(i, k, 1) > m.Payoff(i, j, 1) {
					stable = false
				}
			}
			if stable {
				out[core.Profile{Row: i, Col: j}] = true
			}
		}
	}
	return out
}

func TestRandomEquilibriaAgreeWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen, err := NewRandom(3, 2, -5, 5)
	if err != nil {
		t.Fatalf("NewRandom() error = %v", err)
	}
	for trial := 0; trial < 200; trial++ {
		m, err := gen.Generate(rng)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		want := bruteForce(m)
		got := m.Equilibria()
		if len(got) != len(want) {
			t.Fatalf("trial %d: got %v, want %v\n%s", trial, got, want, m)
		}
		for _, eq := range got {
			if !want[eq] {
				t.Fatalf("trial %d: %v is not an equilibrium\n%s", trial, eq, m)
			}
		}
	}
}

func TestNewRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name       string
		numActions int
		numPlayers int
		payoffs    [][][]float64
	}{
		{"zero actions", 0, 2, nil},
		{"zero players", 1, 0, [][][]float64{{{}}}},
		{"wrong row count", 2, 2, [][][]float64{{{1, 1}, {1, 1}}}},
		{"ragged columns", 2, 2, [][][]float64{{{1, 1}, {1, 1}}, {{1, 1}}}},
		{"wrong player count", 1, 2, [][][]float64{{{1, 1, 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.numActions, tt.numPlayers, tt.payoffs)
			if !errors.Is(err, core.ErrConstruction) {
				t.Errorf("New() error = %v, want ErrConstruction", err)
			}
		})
	}

	if _, err := FromFlat(2, 2, []float64{1, 2, 3}); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("FromFlat() error = %v, want ErrConstruction", err)
	}
}

func TestModelCopiesInput(t *testing.T) {
	payoffs := [][][]float64{{{1, 2}}}
	m, err := New(1, 2, payoffs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	payoffs[0][0][0] = 99
	if got := m.Payoff(0, 0, 0); got != 1 {
		t.Errorf("Payoff() = %v after caller mutation, want 1", got)
	}
	out := m.Payoffs()
	out[0][0][1] = 99
	if got := m.Payoff(0, 0, 1); got != 2 {
		t.Errorf("Payoff() = %v after mutating Payoffs() copy, want 2", got)
	}
}

func TestPrisonersDilemmaOrdering(t *testing.T) {
	g := DefaultPrisonersDilemma()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		v, err := g.Sample(rng)
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if !(v.Temptation > v.Reward && v.Reward > v.Punishment && v.Punishment > v.Sucker) {
			t.Fatalf("ordering violated: %+v", v)
		}

		m, err := g.Generate(rng)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		temptation, reward := m.Payoff(1, 0, 0), m.Payoff(0, 0, 0)
		punishment, sucker := m.Payoff(1, 1, 0), m.Payoff(0, 1, 0)
		if !(temptation > reward && reward > punishment && punishment > sucker) {
			t.Fatalf("assembled matrix violates ordering:\n%s", m)
		}
		if diff := cmp.Diff([]core.Profile{{Row: 1, Col: 1}}, m.Equilibria()); diff != "" {
			t.Fatalf("equilibria mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestFamilyEquilibria(t *testing.T) {
	tests := []struct {
		family string
		want   []core.Profile
	}{
		{"pd", []core.Profile{{Row: 1, Col: 1}}},
		{"stag_hunt", []core.Profile{{Row: 0, Col: 0}, {Row: 1, Col: 1}}},
		{"chicken", []core.Profile{{Row: 0, Col: 1}, {Row: 1, Col: 0}}},
		{"bos", []core.Profile{{Row: 0, Col: 0}, {Row: 1, Col: 1}}},
		{"asymmetric", []core.Profile{{Row: 1, Col: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			g, err := Family(tt.family)
			if err != nil {
				t.Fatalf("Family() error = %v", err)
			}
			rng := rand.New(rand.NewSource(1))
			for i := 0; i < 100; i++ {
				m, err := g.Generate(rng)
				if err != nil {
					t.Fatalf("Generate() error = %v", err)
				}
				if diff := cmp.Diff(tt.want, m.Equilibria()); diff != "" {
					t.Fatalf("equilibria mismatch (-want +got):\n%s\n%s", diff, m)
				}
			}
		})
	}
}

func TestFamilyInvalidRanges(t *testing.T) {
	pd := DefaultPrisonersDilemma()
	pd.Reward = Range{Min: 7, Max: 9}
	if _, err := pd.Generate(rand.New(rand.NewSource(1))); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("overlapping ranges: error = %v, want ErrConstruction", err)
	}

	bos := DefaultBattleOfTheSexes()
	bos.Compromise = Range{Min: 3, Max: 2}
	if _, err := bos.Generate(rand.New(rand.NewSource(1))); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("empty range: error = %v, want ErrConstruction", err)
	}

	asym := DefaultAsymmetricDilemma()
	asym.Col.Sucker = Range{Min: 5, Max: 6}
	if _, err := asym.Generate(rand.New(rand.NewSource(1))); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("asymmetric column ranges: error = %v, want ErrConstruction", err)
	}

	if _, err := Family("rock_paper_scissors"); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("unknown family: error = %v, want ErrConstruction", err)
	}
}

func TestRandomGenerator(t *testing.T) {
	if _, err := NewRandom(2, 2, 5, 5); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("min == max: error = %v, want ErrConstruction", err)
	}
	if _, err := NewRandom(0, 2, -1, 1); !errors.Is(err, core.ErrConstruction) {
		t.Errorf("zero actions: error = %v, want ErrConstruction", err)
	}

	g, err := NewRandom(2, 2, -2, 2)
	if err != nil {
		t.Fatalf("NewRandom() error = %v", err)
	}
	a, _ := g.Generate(rand.New(rand.NewSource(3)))
	b, _ := g.Generate(rand.New(rand.NewSource(3)))
	if diff := cmp.Diff(a.Payoffs(), b.Payoffs()); diff != "" {
		t.Errorf("same seed produced different payoffs:\n%s", diff)
	}
	for _, row := range a.Payoffs() {
		for _, cell := range row {
			for _, v := range cell {
				if v < -2 || v > 2 {
					t.Errorf("payoff %v outside [-2, 2]", v)
				}
			}
		}
	}
}

func TestFixedGeneratorGivesFreshCache(t *testing.T) {
	m, err := New(2, 2, [][][]float64{{{3, 3}, {0, 5}}, {{5, 0}, {1, 1}}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	g := NewFixed(m)
	next, err := g.Generate(nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if next == m {
		t.Error("Generate() returned the same model instance")
	}
	if diff := cmp.Diff(m.Payoffs(), next.Payoffs()); diff != "" {
		t.Errorf("payoffs differ:\n%s", diff)
	}
}

func TestModelString(t *testing.T) {
	m, _ := New(2, 2, [][][]float64{{{3, 3}, {0, 5}}, {{5, 0}, {1, 1}}})
	s := m.String()
	for _, want := range []string{"2 players", "row 1", "col 1", "(5, 0)"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}

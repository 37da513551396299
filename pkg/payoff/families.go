package payoff

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/nordbyerik/gaims/pkg/core"
)

// Range is an inclusive integer interval a payoff scalar is sampled from.
type Range struct {
	Min int
	Max int
}

func (r Range) sample(rng *rand.Rand) float64 {
	return float64(r.Min + rng.Intn(r.Max-r.Min+1))
}

// ordered checks that every range is well formed and lies strictly above the
// one after it, so any draw satisfies the family's strict ordering.
func ordered(family string, names []string, ranges []Range) error {
	for i, r := range ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%w: %s %s range [%d, %d] is empty", core.ErrConstruction, family, names[i], r.Min, r.Max)
		}
		if i > 0 && ranges[i-1].Min <= r.Max {
			return fmt.Errorf("%w: %s requires %s > %s but ranges [%d, %d] and [%d, %d] overlap",
				core.ErrConstruction, family, names[i-1], names[i], ranges[i-1].Min, ranges[i-1].Max, r.Min, r.Max)
		}
	}
	return nil
}

// symmetric2x2 assembles a symmetric two-action game from the payoffs of the
// four outcomes, seen from the row player: (0,0)=cc, (0,1)=cd, (1,0)=dc, (1,1)=dd.
func symmetric2x2(cc, cd, dc, dd float64) [][][]float64 {
	return [][][]float64{
		{{cc, cc}, {cd, dc}},
		{{dc, cd}, {dd, dd}},
	}
}

// DilemmaPayoffs holds one player's sampled prisoner's-dilemma scalars.
type DilemmaPayoffs struct {
	Temptation float64
	Reward     float64
	Punishment float64
	Sucker     float64
}

// PrisonersDilemma samples Temptation > Reward > Punishment > Sucker.
// Action 0 cooperates, action 1 defects.
type PrisonersDilemma struct {
	Temptation Range
	Reward     Range
	Punishment Range
	Sucker     Range
}

func DefaultPrisonersDilemma() PrisonersDilemma {
	return PrisonersDilemma{
		Temptation: Range{6, 8},
		Reward:     Range{4, 5},
		Punishment: Range{2, 3},
		Sucker:     Range{0, 1},
	}
}

func (g PrisonersDilemma) Name() string { return "prisoners_dilemma" }

func (g PrisonersDilemma) validate() error {
	return ordered(g.Name(),
		[]string{"temptation", "reward", "punishment", "sucker"},
		[]Range{g.Temptation, g.Reward, g.Punishment, g.Sucker})
}

// Sample draws one set of scalars.
func (g PrisonersDilemma) Sample(rng *rand.Rand) (DilemmaPayoffs, error) {
	if err := g.validate(); err != nil {
		return DilemmaPayoffs{}, err
	}
	return DilemmaPayoffs{
		Temptation: g.Temptation.sample(rng),
		Reward:     g.Reward.sample(rng),
		Punishment: g.Punishment.sample(rng),
		Sucker:     g.Sucker.sample(rng),
	}, nil
}

func (g PrisonersDilemma) Generate(rng *rand.Rand) (*Model, error) {
	v, err := g.Sample(rng)
	if err != nil {
		return nil, err
	}
	return New(2, 2, symmetric2x2(v.Reward, v.Sucker, v.Temptation, v.Punishment))
}

// StagHunt samples Reward > Temptation > Punishment > Sucker: hunting the
// stag together beats everything, hunting hare alone is safe.
// Action 0 hunts stag, action 1 hunts hare.
type StagHunt struct {
	Reward     Range
	Temptation Range
	Punishment Range
	Sucker     Range
}

func DefaultStagHunt() StagHunt {
	return StagHunt{
		Reward:     Range{8, 10},
		Temptation: Range{5, 7},
		Punishment: Range{3, 4},
		Sucker:     Range{0, 2},
	}
}

func (g StagHunt) Name() string { return "stag_hunt" }

func (g StagHunt) Generate(rng *rand.Rand) (*Model, error) {
	err := ordered(g.Name(),
		[]string{"reward", "temptation", "punishment", "sucker"},
		[]Range{g.Reward, g.Temptation, g.Punishment, g.Sucker})
	if err != nil {
		return nil, err
	}
	r, t, p, s := g.Reward.sample(rng), g.Temptation.sample(rng), g.Punishment.sample(rng), g.Sucker.sample(rng)
	return New(2, 2, symmetric2x2(r, s, t, p))
}

// Chicken samples Temptation > Swerve > Chicken > Crash. Going straight
// against a swerving opponent pays Temptation, both swerving pays Swerve,
// swerving against a straight driver pays Chicken and a collision pays Crash.
// Action 0 swerves, action 1 goes straight. The ordering makes it an
// anti-coordination game: its pure equilibria are (0, 1) and (1, 0).
type Chicken struct {
	Temptation Range
	Swerve     Range
	Chicken    Range
	Crash      Range
}

func DefaultChicken() Chicken {
	return Chicken{
		Temptation: Range{6, 8},
		Swerve:     Range{4, 5},
		Chicken:    Range{1, 3},
		Crash:      Range{-10, -5},
	}
}

func (g Chicken) Name() string { return "chicken" }

func (g Chicken) Generate(rng *rand.Rand) (*Model, error) {
	err := ordered(g.Name(),
		[]string{"temptation", "swerve", "chicken", "crash"},
		[]Range{g.Temptation, g.Swerve, g.Chicken, g.Crash})
	if err != nil {
		return nil, err
	}
	t, sw, c, crash := g.Temptation.sample(rng), g.Swerve.sample(rng), g.Chicken.sample(rng), g.Crash.sample(rng)
	return New(2, 2, symmetric2x2(sw, c, t, crash))
}

// BattleOfTheSexes samples Preferred > Compromise > Miscoordination. Action 0
// is the row player's favourite venue, action 1 the column player's.
// Coordinating on a venue pays its fan Preferred and the other Compromise.
type BattleOfTheSexes struct {
	Preferred       Range
	Compromise      Range
	Miscoordination Range
}

func DefaultBattleOfTheSexes() BattleOfTheSexes {
	return BattleOfTheSexes{
		Preferred:       Range{4, 6},
		Compromise:      Range{2, 3},
		Miscoordination: Range{0, 1},
	}
}

func (g BattleOfTheSexes) Name() string { return "battle_of_the_sexes" }

func (g BattleOfTheSexes) Generate(rng *rand.Rand) (*Model, error) {
	err := ordered(g.Name(),
		[]string{"preferred", "compromise", "miscoordination"},
		[]Range{g.Preferred, g.Compromise, g.Miscoordination})
	if err != nil {
		return nil, err
	}
	pref, comp, mis := g.Preferred.sample(rng), g.Compromise.sample(rng), g.Miscoordination.sample(rng)
	return New(2, 2, [][][]float64{
		{{pref, comp}, {mis, mis}},
		{{mis, mis}, {comp, pref}},
	})
}

// AsymmetricDilemma is a cooperate/defect game where each player samples
// their own dilemma scalars from separate ranges. Defection dominates for
// both, but the stakes differ. Action 0 cooperates, action 1 defects.
type AsymmetricDilemma struct {
	Row PrisonersDilemma
	Col PrisonersDilemma
}

func DefaultAsymmetricDilemma() AsymmetricDilemma {
	return AsymmetricDilemma{
		Row: DefaultPrisonersDilemma(),
		Col: PrisonersDilemma{
			Temptation: Range{9, 12},
			Reward:     Range{5, 8},
			Punishment: Range{1, 4},
			Sucker:     Range{-3, 0},
		},
	}
}

func (g AsymmetricDilemma) Name() string { return "asymmetric_dilemma" }

func (g AsymmetricDilemma) Generate(rng *rand.Rand) (*Model, error) {
	row, err := g.Row.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("row player: %w", err)
	}
	col, err := g.Col.Sample(rng)
	if err != nil {
		return nil, fmt.Errorf("column player: %w", err)
	}
	return New(2, 2, [][][]float64{
		{{row.Reward, col.Reward}, {row.Sucker, col.Temptation}},
		{{row.Temptation, col.Sucker}, {row.Punishment, col.Punishment}},
	})
}

// Family returns the canonical generator registered under name, with its
// default ranges.
func Family(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pd", "prisoners_dilemma", "prisoners-dilemma":
		return DefaultPrisonersDilemma(), nil
	case "stag", "stag_hunt", "stag-hunt":
		return DefaultStagHunt(), nil
	case "chicken":
		return DefaultChicken(), nil
	case "bos", "battle_of_the_sexes", "battle-of-the-sexes":
		return DefaultBattleOfTheSexes(), nil
	case "asymmetric", "asymmetric_dilemma", "asymmetric-dilemma":
		return DefaultAsymmetricDilemma(), nil
	default:
		return nil, fmt.Errorf("%w: unknown game family %q", core.ErrConstruction, name)
	}
}

// Families lists the canonical family names accepted by Family.
func Families() []string {
	return []string{"prisoners_dilemma", "stag_hunt", "chicken", "battle_of_the_sexes", "asymmetric_dilemma"}
}

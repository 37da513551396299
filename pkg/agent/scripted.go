package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// scripted supplies the non-acting phases for rule-based providers: a short
// state summary as observation and an optional fixed message.
type scripted struct {
	message string
}

func (s scripted) Observe(_ context.Context, in Context) (string, error) {
	return fmt.Sprintf("round %d, utility %v", in.Round, in.State.CumulativeUtility), nil
}

func (s scripted) Communicate(_ context.Context, _ Context) (Outgoing, error) {
	return Outgoing{Content: s.message}, nil
}

func (s scripted) ObserveCommunication(_ context.Context, in Context) (string, error) {
	if len(in.Messages) == 0 {
		return "no messages", nil
	}
	lines := make([]string, len(in.Messages))
	for i, m := range in.Messages {
		lines[i] = fmt.Sprintf("%s: %s", m.From, m.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// Constant always plays the same action.
type Constant struct {
	scripted
	action int
}

// NewConstant returns a provider that plays action every round and, if
// message is non-empty, sends it to all partners.
func NewConstant(action int, message string) *Constant {
	return &Constant{scripted: scripted{message: message}, action: action}
}

func (c *Constant) Act(_ context.Context, _ Context) (int, error) {
	return c.action, nil
}

// Random plays uniformly at random from a seeded source.
type Random struct {
	scripted
	rng *rand.Rand
	mu  sync.Mutex
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Act(_ context.Context, in Context) (int, error) {
	n := in.NumActions()
	if n == 0 {
		return 0, fmt.Errorf("no actions available")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n), nil
}

// TitForTat opens with cooperate and then copies the opponent's previous
// action.
type TitForTat struct {
	scripted
	cooperate int
}

func NewTitForTat(cooperate int) *TitForTat {
	return &TitForTat{cooperate: cooperate}
}

func (t *TitForTat) Act(_ context.Context, in Context) (int, error) {
	last := in.State.LastProfile
	if last == nil || in.Opponent() >= len(last) {
		return t.cooperate, nil
	}
	return last[in.Opponent()], nil
}

// Grim cooperates until the opponent plays anything else once, then defects
// for the rest of the episode.
type Grim struct {
	scripted
	cooperate int
	defect    int
	triggered bool
	mu        sync.Mutex
}

func NewGrim(cooperate, defect int) *Grim {
	return &Grim{cooperate: cooperate, defect: defect}
}

func (g *Grim) Act(_ context.Context, in Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last := in.State.LastProfile
	if last == nil {
		// new episode
		g.triggered = false
	} else if in.Opponent() < len(last) && last[in.Opponent()] != g.cooperate {
		g.triggered = true
	}
	if g.triggered {
		return g.defect, nil
	}
	return g.cooperate, nil
}

// Scripted builds a rule-based provider by name: constant, random,
// tit_for_tat or grim. action is the constant action or the cooperative
// action; the defecting action for grim is action+1 modulo numActions.
func Scripted(strategy string, action, numActions int, message string, seed int64) (DecisionProvider, error) {
	switch strings.ToLower(strategy) {
	case "", "constant":
		return NewConstant(action, message), nil
	case "random":
		return NewRandom(seed), nil
	case "tit_for_tat", "tft":
		return NewTitForTat(action), nil
	case "grim":
		if numActions < 2 {
			return nil, fmt.Errorf("grim needs at least two actions")
		}
		return NewGrim(action, (action+1)%numActions), nil
	default:
		return nil, fmt.Errorf("unknown scripted strategy %q", strategy)
	}
}

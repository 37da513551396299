package environment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nordbyerik/gaims/pkg/core"
)

var _ core.Environment = (*Env)(nil)

// Env is the episode control surface over one orchestrator. The game state
// and medium it drives are owned by that orchestrator for the episode.
type Env struct {
	orch *Orchestrator
	last RoundResult
	now  func() time.Time
	mu   sync.RWMutex
}

func NewEnv(orch *Orchestrator) *Env {
	return &Env{
		orch: orch,
		now:  time.Now,
	}
}

func (e *Env) Orchestrator() *Orchestrator {
	return e.orch
}

// LastRound returns the transcript of the most recently closed round.
func (e *Env) LastRound() RoundResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

func (e *Env) observation() core.Observation {
	return core.Observation{
		State:     e.orch.state.Snapshot(),
		Timestamp: e.now(),
	}
}

// Reset draws fresh payoffs, zeroes utility and rounds, empties the inboxes
// and forgets agent histories.
func (e *Env) Reset(ctx context.Context) (core.Observation, core.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.orch.state.Reset(); err != nil {
		return core.Observation{}, core.Info{}, fmt.Errorf("reset game state: %w", err)
	}
	if e.orch.medium != nil {
		e.orch.medium.Clear()
	}
	e.orch.ResetHistories()
	e.last = RoundResult{}

	info := core.Info{Equilibria: e.orch.state.Model().Equilibria()}
	return e.observation(), info, nil
}

// Step runs one round. Each given action replaces the named agent's Act call;
// an unknown agent or out-of-range index is rejected before the round starts.
func (e *Env) Step(ctx context.Context, actions ...core.Action) (core.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	overrides, err := e.overrides(actions)
	if err != nil {
		return core.StepResult{}, err
	}

	res, err := e.orch.RunRound(ctx, overrides)
	if err != nil {
		return core.StepResult{}, err
	}
	e.last = res

	obs := e.observation()
	return core.StepResult{
		Observation: obs,
		Reward:      append([]float64(nil), obs.State.CumulativeUtility...),
		Done:        obs.State.Round >= e.orch.numRounds,
		Info: core.Info{
			Equilibria:    e.orch.state.Model().Equilibria(),
			Profile:       res.Profile,
			Failures:      res.Failures,
			RoutingMisses: res.RoutingMisses,
		},
	}, nil
}

func (e *Env) overrides(actions []core.Action) (map[string]int, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	numActions := e.orch.state.Model().NumActions()
	out := make(map[string]int, len(actions))
	for _, a := range actions {
		if _, ok := e.orch.histories[a.AgentID]; !ok {
			return nil, fmt.Errorf("%w: unknown agent %q", core.ErrValidation, a.AgentID)
		}
		if a.ActionIndex < 0 || a.ActionIndex >= numActions {
			return nil, fmt.Errorf("%w: action %d for agent %s outside [0, %d)",
				core.ErrValidation, a.ActionIndex, a.AgentID, numActions)
		}
		out[a.AgentID] = a.ActionIndex
	}
	return out, nil
}

// Render writes the round, cumulative utility, payoff matrix, the last joint
// action and each agent's latest observation to w.
func (e *Env) Render(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := e.orch.state.Snapshot()
	model := e.orch.state.Model()

	var b strings.Builder
	fmt.Fprintf(&b, "Round: %d/%d\n", snap.Round, e.orch.numRounds)
	b.WriteString("Cumulative utility:")
	for i, id := range e.orch.ids {
		fmt.Fprintf(&b, " %s=%g", id, snap.CumulativeUtility[i])
	}
	b.WriteString("\n")
	b.WriteString(model.String())
	eq := model.Equilibria()
	parts := make([]string, len(eq))
	for i, p := range eq {
		parts[i] = p.String()
	}
	fmt.Fprintf(&b, "Pure equilibria: [%s]\n", strings.Join(parts, " "))
	if p := snap.LastProfile; len(p) >= 2 {
		fmt.Fprintf(&b, "Last profile: %v", p)
		if model.IsEquilibrium(p[0], p[1]) {
			b.WriteString(" (equilibrium)")
		}
		b.WriteString("\n")
	}
	for _, id := range e.orch.ids {
		if last, ok := e.orch.histories[id].Last(); ok {
			fmt.Fprintf(&b, "Last observation of %s: %s\n", id, last)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Package game holds the round-indexed state machine of a repeated matrix
// game: pending actions, cumulative utility and the current payoff model.
package game

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/payoff"
)

type pendingAction struct {
	action core.Action
	round  int
}

// State is the game state machine. Player slots follow the order of the
// player ids it was built with: slot 0 picks the row, slot 1 the column.
type State struct {
	players   []string
	slots     map[string]int
	generator payoff.Generator
	rng       *rand.Rand

	round       int
	pending     []pendingAction
	cumulative  []float64
	lastProfile []int
	model       *payoff.Model
	mu          sync.RWMutex
}

// NewState draws the first payoff model from generator. The number of players
// must match the model's player count.
func NewState(players []string, generator payoff.Generator, rng *rand.Rand) (*State, error) {
	if generator == nil {
		return nil, fmt.Errorf("%w: game state needs a payoff generator", core.ErrConstruction)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: game state needs a random source", core.ErrConstruction)
	}
	slots := make(map[string]int, len(players))
	for i, id := range players {
		if _, dup := slots[id]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", core.ErrConstruction, id)
		}
		slots[id] = i
	}

	s := &State{
		players:   append([]string(nil), players...),
		slots:     slots,
		generator: generator,
		rng:       rng,
	}
	model, err := s.draw()
	if err != nil {
		return nil, err
	}
	s.model = model
	s.cumulative = make([]float64, len(players))
	return s, nil
}

func (s *State) draw() (*payoff.Model, error) {
	model, err := s.generator.Generate(s.rng)
	if err != nil {
		return nil, fmt.Errorf("generate %s payoffs: %w", s.generator.Name(), err)
	}
	if model.NumPlayers() != len(s.players) {
		return nil, fmt.Errorf("%w: %s payoffs are for %d players, game has %d",
			core.ErrConstruction, s.generator.Name(), model.NumPlayers(), len(s.players))
	}
	return model, nil
}

// StepAgent records action for the current round. It rejects unknown agents
// and out-of-range action indices without touching state.
func (s *State) StepAgent(action core.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[action.AgentID]; !ok {
		return fmt.Errorf("%w: unknown agent %q", core.ErrValidation, action.AgentID)
	}
	if action.ActionIndex < 0 || action.ActionIndex >= s.model.NumActions() {
		return fmt.Errorf("%w: action %d for agent %s outside [0, %d)",
			core.ErrValidation, action.ActionIndex, action.AgentID, s.model.NumActions())
	}
	s.pending = append(s.pending, pendingAction{action: action, round: s.round})
	return nil
}

// Step closes the current round. Actions tagged with the round form the joint
// profile; a player who submitted nothing plays 0 and a later submission
// overrides an earlier one. Closed-round actions are discarded. The payoff
// vector of the profile is added to the cumulative utility and the round
// advances. It returns the applied profile.
func (s *State) Step() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := make([]int, len(s.players))
	for _, p := range s.pending {
		if p.round == s.round {
			profile[s.slots[p.action.AgentID]] = p.action.ActionIndex
		}
	}

	row, col := 0, 0
	if len(profile) > 0 {
		row = profile[0]
	}
	if len(profile) > 1 {
		col = profile[1]
	}
	for p, v := range s.model.Vector(row, col) {
		s.cumulative[p] += v
	}

	s.lastProfile = profile
	s.pending = nil
	s.round++
	return append([]int(nil), profile...)
}

// Round returns the index of the round currently open for actions.
func (s *State) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Players returns the player ids in slot order.
func (s *State) Players() []string {
	return append([]string(nil), s.players...)
}

// Model returns the current payoff model.
func (s *State) Model() *payoff.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Snapshot returns a read-only copy of the state.
func (s *State) Snapshot() core.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := core.State{
		Round:             s.round,
		CumulativeUtility: append([]float64(nil), s.cumulative...),
		Payoffs:           s.model.Payoffs(),
	}
	if s.lastProfile != nil {
		snap.LastProfile = append([]int(nil), s.lastProfile...)
	}
	return snap
}

// PendingActions returns the actions submitted for the current round.
func (s *State) PendingActions() []core.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Action
	for _, p := range s.pending {
		if p.round == s.round {
			out = append(out, p.action)
		}
	}
	return out
}

// Reset zeroes the round and utilities, clears pending actions and draws a
// fresh payoff model. On a failed draw the state is left unchanged.
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	model, err := s.draw()
	if err != nil {
		return err
	}
	s.model = model
	s.round = 0
	s.pending = nil
	s.lastProfile = nil
	s.cumulative = make([]float64, len(s.players))
	return nil
}

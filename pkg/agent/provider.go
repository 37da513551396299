// Package agent defines the decision provider contract the round orchestrator
// calls once per phase per agent, and its variants: an LLM-backed agent and
// scripted baselines.
package agent

import (
	"context"

	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/messaging"
)

// Phase names one step of a round.
type Phase string

const (
	PhaseObserve              Phase = "observe"
	PhaseCommunicate          Phase = "communicate"
	PhaseObserveCommunication Phase = "observe_communication"
	PhaseAct                  Phase = "act"
)

// Context is everything the orchestrator tells an agent about the game at the
// start of a phase. Providers may ignore fields they do not need.
type Context struct {
	AgentID string
	// Slot is the agent's player index: 0 picks the row, 1 the column.
	Slot    int
	Players []string
	State   core.State
	Round   int
	// NumRounds is the configured episode length.
	NumRounds             int
	CommunicationPartners []string
	ObservationHistory    []string
	// Messages holds what was received this round, ordered by sequence id.
	// Only set for the observe-communication phase.
	Messages []messaging.Message
}

// NumActions returns the number of actions available to each player.
func (c Context) NumActions() int {
	return len(c.State.Payoffs)
}

// Opponent returns the slot whose action this agent plays against.
func (c Context) Opponent() int {
	if c.Slot == 0 && len(c.Players) > 1 {
		return 1
	}
	return 0
}

// Outgoing is a message an agent wants to send. Empty Receivers means every
// communication partner; empty Content means no message.
type Outgoing struct {
	Receivers []string
	Content   string
}

// DecisionProvider produces an agent's output for each phase of a round.
// Implementations must be safe for concurrent use across agents; a single
// provider instance is only ever called for one agent at a time.
type DecisionProvider interface {
	Observe(ctx context.Context, in Context) (string, error)
	Communicate(ctx context.Context, in Context) (Outgoing, error)
	ObserveCommunication(ctx context.Context, in Context) (string, error)
	Act(ctx context.Context, in Context) (int, error)
}

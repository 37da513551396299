package core

import (
	"fmt"
	"time"
)

// Action is a single agent's committed choice for a round.
type Action struct {
	AgentID     string
	ActionIndex int
}

func (a Action) String() string {
	return fmt.Sprintf("%s->%d", a.AgentID, a.ActionIndex)
}

// Profile is a joint pure-strategy action pair: the row player's action and
// the column player's action.
type Profile struct {
	Row int
	Col int
}

func (p Profile) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// State is a read-only snapshot of a game in progress.
type State struct {
	Round             int
	CumulativeUtility []float64
	// Payoffs is indexed [row action][column action][player].
	Payoffs [][][]float64
	// LastProfile holds the action index each player slot played in the most
	// recently closed round. Nil before the first round closes.
	LastProfile []int
}

// Clone returns a deep copy of the snapshot.
func (s State) Clone() State {
	out := State{Round: s.Round}
	out.CumulativeUtility = append([]float64(nil), s.CumulativeUtility...)
	if s.LastProfile != nil {
		out.LastProfile = append([]int(nil), s.LastProfile...)
	}
	out.Payoffs = make([][][]float64, len(s.Payoffs))
	for i := range s.Payoffs {
		out.Payoffs[i] = make([][]float64, len(s.Payoffs[i]))
		for j := range s.Payoffs[i] {
			out.Payoffs[i][j] = append([]float64(nil), s.Payoffs[i][j]...)
		}
	}
	return out
}

// Observation is what the episode control surface hands back after reset and
// after every step.
type Observation struct {
	State     State
	Timestamp time.Time
}

// Failure records a decision provider call that had to be substituted.
type Failure struct {
	AgentID string
	Phase   string
	Round   int
	Err     error
}

// Info carries diagnostics alongside an observation.
type Info struct {
	Equilibria []Profile
	// Profile is the joint action applied when the round closed.
	Profile []int
	// Failures lists every provider call substituted during the round.
	Failures []Failure
	// RoutingMisses counts messages sent to receivers outside the sender's
	// partners. Routing is advisory, so these are still delivered.
	RoutingMisses int
}

// IsEquilibrium reports whether the applied profile is one of the pure
// equilibria. Always false when fewer than two players acted.
func (i Info) IsEquilibrium() bool {
	if len(i.Profile) < 2 {
		return false
	}
	for _, eq := range i.Equilibria {
		if eq.Row == i.Profile[0] && eq.Col == i.Profile[1] {
			return true
		}
	}
	return false
}

// StepResult is the outcome of one round.
type StepResult struct {
	Observation Observation
	// Reward is the cumulative utility vector indexed by player slot.
	Reward []float64
	Done   bool
	Info   Info
}

type ExperimentStatus struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Episodes  int
	Errors    []error
}

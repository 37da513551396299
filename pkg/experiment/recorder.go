package experiment

import (
	"context"
	"time"

	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/environment"
	"github.com/nordbyerik/gaims/pkg/messaging"
)

// Episode describes an episode as it starts.
type Episode struct {
	ID         string
	Index      int
	Experiment string
	Seed       int64
	Agents     []string
	Payoffs    [][][]float64
	Equilibria []core.Profile
	StartedAt  time.Time
}

// Round is the transcript of one closed round.
type Round struct {
	EpisodeID     string
	Round         int
	Profile       []int
	Payoffs       []float64
	Cumulative    []float64
	Equilibrium   bool
	Messages      []messaging.Message
	Observations  []environment.AgentObservation
	Failures      []core.Failure
	RoutingMisses int
}

// Recorder persists experiment transcripts. Errors are logged by the runner
// and do not stop the experiment.
type Recorder interface {
	StartEpisode(ctx context.Context, ep Episode) error
	RecordRound(ctx context.Context, r Round) error
	FinishEpisode(ctx context.Context, s EpisodeStats) error
}

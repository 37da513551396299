package core

import (
	"context"
	"io"
)

// Environment is the episode control surface exposed to experiment drivers.
type Environment interface {
	// Reset starts a new episode and returns its first observation.
	Reset(ctx context.Context) (Observation, Info, error)
	// Step runs exactly one round. Actions, if given, override the decision
	// providers of the named agents for the Act phase.
	Step(ctx context.Context, actions ...Action) (StepResult, error)
	// Render writes a textual dump of the current episode.
	Render(w io.Writer) error
}

// Experiment coordinates the running of experiments
type Experiment interface {
	// Run executes the experiment according to configuration
	Run(ctx context.Context) error
	// Stop gracefully stops the experiment
	Stop() error
	// GetStatus returns current experiment status
	GetStatus() ExperimentStatus
}

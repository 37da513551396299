package core

import "errors"

var (
	// ErrConstruction marks misconfiguration detected while building a payoff
	// model, topology, game state or orchestrator. It aborts the episode.
	ErrConstruction = errors.New("construction error")

	// ErrValidation marks a rejected call that left state untouched, such as
	// an out-of-range action index.
	ErrValidation = errors.New("validation error")

	// ErrDecisionProvider marks a failed or malformed decision provider call.
	// The orchestrator recovers these locally and never returns them.
	ErrDecisionProvider = errors.New("decision provider failure")
)

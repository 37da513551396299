package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/nordbyerik/gaims/pkg/agent"
	"github.com/nordbyerik/gaims/pkg/config"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/environment"
	"github.com/nordbyerik/gaims/pkg/game"
	"github.com/nordbyerik/gaims/pkg/messaging"
	"github.com/nordbyerik/gaims/pkg/providers"
)

// BuildEnv assembles a fresh environment for one episode. All randomness
// derives from seed. The medium is only attached when the communicate phase
// is enabled.
func BuildEnv(ctx context.Context, cfg *config.ExperimentConfig, factory *providers.Factory, seed int64, logger *slog.Logger) (*environment.Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gen, err := cfg.Generator()
	if err != nil {
		return nil, err
	}
	ids := cfg.AgentIDs()
	state, err := game.NewState(ids, gen, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}

	participants := make([]environment.Participant, len(cfg.Agents))
	for i, a := range cfg.Agents {
		p, err := buildProvider(ctx, cfg, a, factory, state.Model().NumActions(), seed+int64(i)+1, logger)
		if err != nil {
			return nil, err
		}
		participants[i] = environment.Participant{ID: a.ID, Provider: p}
	}

	opts := []environment.OrchestratorOption{
		environment.WithNumRounds(cfg.Rounds),
		environment.WithPhases(environment.Phases{
			Observe:     cfg.Phases.Observe,
			Communicate: cfg.Phases.Communicate,
		}),
		environment.WithDecisionTimeout(cfg.DecisionTimeout),
		environment.WithParallel(cfg.Parallel),
		environment.WithLogger(logger),
	}
	if cfg.Phases.Communicate {
		topo, err := messaging.NewTopology(cfg.Topology.Kind, ids, cfg.Topology.Seed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, environment.WithMedium(messaging.NewMedium(topo)))
	}

	orch, err := environment.NewOrchestrator(participants, state, opts...)
	if err != nil {
		return nil, err
	}
	return environment.NewEnv(orch), nil
}

func buildProvider(ctx context.Context, cfg *config.ExperimentConfig, a config.AgentConfig, factory *providers.Factory, numActions int, seed int64, logger *slog.Logger) (agent.DecisionProvider, error) {
	switch strings.ToLower(a.Provider) {
	case "", config.ProviderScripted:
		p, err := agent.Scripted(a.Strategy, a.Action, numActions, a.Message, seed)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: %v", core.ErrConstruction, a.ID, err)
		}
		return p, nil
	default:
		if factory == nil {
			return nil, fmt.Errorf("%w: agent %s needs a provider factory", core.ErrConstruction, a.ID)
		}
		client, err := factory.Client(ctx, a.Provider,
			providers.WithBaseURL(a.BaseURL),
			providers.WithAPIKey(a.APIKey),
			providers.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: %v", core.ErrConstruction, a.ID, err)
		}
		return agent.NewLLMAgent(
			agent.WithAgentId(a.ID),
			agent.WithClient(client),
			agent.WithModel(agent.ModelInfo{Id: a.Model, Config: make(map[string]any)}),
			agent.WithPersona(a.Persona),
			agent.WithActionNames(cfg.Game.ActionNames...),
			agent.WithLogger(logger),
		)
	}
}

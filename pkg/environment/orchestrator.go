// Package environment runs rounds of a repeated matrix game: the round
// orchestrator drives decision providers through each phase, and Env exposes
// the episode control surface on top of it.
package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nordbyerik/gaims/pkg/agent"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/game"
	"github.com/nordbyerik/gaims/pkg/memory"
	"github.com/nordbyerik/gaims/pkg/messaging"
)

// Participant binds an agent id to the provider that decides for it. The
// order of participants defines player slots.
type Participant struct {
	ID       string
	Provider agent.DecisionProvider
}

// Phases toggles the optional phases of a round.
type Phases struct {
	Observe     bool
	Communicate bool
}

// AgentObservation is one observation produced during a round.
type AgentObservation struct {
	AgentID string
	Phase   agent.Phase
	Text    string
}

// RoundResult is the transcript of one closed round.
type RoundResult struct {
	Round         int
	Profile       []int
	Payoffs       []float64
	Messages      []messaging.Message
	Observations  []AgentObservation
	Failures      []core.Failure
	RoutingMisses int
}

type Orchestrator struct {
	participants []Participant
	ids          []string
	state        *game.State
	medium       *messaging.Medium
	histories    map[string]*memory.Memory
	numRounds    int
	phases       Phases
	timeout      time.Duration
	parallel     bool
	logger       *slog.Logger
	mu           sync.Mutex
}

type OrchestratorParams struct {
	Medium          *messaging.Medium
	NumRounds       int
	Phases          Phases
	DecisionTimeout time.Duration
	Parallel        bool
	HistoryCapacity int
	Logger          *slog.Logger
}

type OrchestratorOption func(*OrchestratorParams)

// WithMedium enables the communication phases over m.
func WithMedium(m *messaging.Medium) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.Medium = m
	}
}

func WithNumRounds(n int) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.NumRounds = n
	}
}

func WithPhases(phases Phases) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.Phases = phases
	}
}

// WithDecisionTimeout bounds every provider call. Zero means no limit.
func WithDecisionTimeout(d time.Duration) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.DecisionTimeout = d
	}
}

// WithParallel calls the providers of a phase concurrently.
func WithParallel(parallel bool) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.Parallel = parallel
	}
}

// WithHistoryCapacity bounds each agent's observation history.
func WithHistoryCapacity(n int) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.HistoryCapacity = n
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(p *OrchestratorParams) {
		p.Logger = logger
	}
}

func defaultOrchestratorParams() *OrchestratorParams {
	return &OrchestratorParams{
		NumRounds:       10,
		Phases:          Phases{Communicate: true},
		DecisionTimeout: 30 * time.Second,
		HistoryCapacity: 100,
		Logger:          slog.Default(),
	}
}

// NewOrchestrator binds participants to state. Participants must match the
// state's players in slot order and, with a medium, belong to its topology.
func NewOrchestrator(participants []Participant, state *game.State, opts ...OrchestratorOption) (*Orchestrator, error) {
	params := defaultOrchestratorParams()
	for _, opt := range opts {
		opt(params)
	}

	if state == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a game state", core.ErrConstruction)
	}
	if params.NumRounds < 1 {
		return nil, fmt.Errorf("%w: number of rounds must be positive, got %d", core.ErrConstruction, params.NumRounds)
	}
	players := state.Players()
	if len(players) != len(participants) {
		return nil, fmt.Errorf("%w: %d participants for %d players", core.ErrConstruction, len(participants), len(players))
	}
	ids := make([]string, len(participants))
	histories := make(map[string]*memory.Memory, len(participants))
	for i, p := range participants {
		if p.ID != players[i] {
			return nil, fmt.Errorf("%w: participant %d is %q, player slot holds %q", core.ErrConstruction, i, p.ID, players[i])
		}
		if p.Provider == nil {
			return nil, fmt.Errorf("%w: participant %q has no decision provider", core.ErrConstruction, p.ID)
		}
		if params.Medium != nil && !params.Medium.Topology().Has(p.ID) {
			return nil, fmt.Errorf("%w: participant %q is not in the %s topology", core.ErrConstruction, p.ID, params.Medium.Topology().Kind())
		}
		ids[i] = p.ID
		histories[p.ID] = memory.NewMemory(params.HistoryCapacity)
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	return &Orchestrator{
		participants: append([]Participant(nil), participants...),
		ids:          ids,
		state:        state,
		medium:       params.Medium,
		histories:    histories,
		numRounds:    params.NumRounds,
		phases:       params.Phases,
		timeout:      params.DecisionTimeout,
		parallel:     params.Parallel,
		logger:       params.Logger,
	}, nil
}

func (o *Orchestrator) State() *game.State {
	return o.state
}

// Medium returns the communication medium, or nil when communication is off.
func (o *Orchestrator) Medium() *messaging.Medium {
	return o.medium
}

func (o *Orchestrator) NumRounds() int {
	return o.numRounds
}

// AgentIDs returns the participant ids in slot order.
func (o *Orchestrator) AgentIDs() []string {
	return append([]string(nil), o.ids...)
}

// History returns the observations recorded for id this episode.
func (o *Orchestrator) History(id string) []memory.Entry {
	if h, ok := o.histories[id]; ok {
		return h.Entries()
	}
	return nil
}

// ResetHistories forgets every agent's observations.
func (o *Orchestrator) ResetHistories() {
	for _, h := range o.histories {
		h.Reset()
	}
}

func (o *Orchestrator) contextFor(i int, snap core.State) agent.Context {
	id := o.ids[i]
	var partners []string
	if o.medium != nil {
		partners = o.medium.PartnersOf(id)
	}
	return agent.Context{
		AgentID:               id,
		Slot:                  i,
		Players:               append([]string(nil), o.ids...),
		State:                 snap.Clone(),
		Round:                 snap.Round,
		NumRounds:             o.numRounds,
		CommunicationPartners: partners,
		ObservationHistory:    o.histories[id].GetAllMessages(),
	}
}

// contexts builds every agent's context for a phase before any provider is
// called, so no agent sees another's output from the same phase.
func (o *Orchestrator) contexts() []agent.Context {
	snap := o.state.Snapshot()
	out := make([]agent.Context, len(o.ids))
	for i := range o.ids {
		out[i] = o.contextFor(i, snap)
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, res *RoundResult, id string, phase agent.Phase, err error) {
	if !errors.Is(err, core.ErrDecisionProvider) {
		err = fmt.Errorf("%w: %w", core.ErrDecisionProvider, err)
	}
	res.Failures = append(res.Failures, core.Failure{AgentID: id, Phase: string(phase), Round: res.Round, Err: err})
	o.logger.WarnContext(ctx, "decision provider failed",
		"agent", id, "phase", phase, "round", res.Round, "err", err)
}

func (o *Orchestrator) remember(res *RoundResult, id string, phase agent.Phase, text string) {
	if text == "" {
		return
	}
	o.histories[id].Store(memory.Entry{Round: res.Round, Phase: string(phase), Text: text})
	res.Observations = append(res.Observations, AgentObservation{AgentID: id, Phase: phase, Text: text})
}

// RunRound drives one round: observe, communicate, observe communication,
// act, then the state transition. overrides replaces the Act call of the
// named agents; indices must already be validated. Provider failures are
// substituted and reported in the result, never returned. Cancelling ctx
// abandons the round: no provider output of the phase in flight is applied,
// the round is not closed and ctx's error is returned.
func (o *Orchestrator) RunRound(ctx context.Context, overrides map[string]int) (RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return RoundResult{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	res := RoundResult{Round: o.state.Round()}
	if o.medium != nil {
		o.medium.SetRound(res.Round)
	}
	o.logger.DebugContext(ctx, "starting round", "round", res.Round)

	if o.phases.Observe {
		if err := o.observe(ctx, &res); err != nil {
			return o.abandon(ctx, res, err)
		}
	}
	if o.medium != nil && o.phases.Communicate {
		if err := o.communicate(ctx, &res); err != nil {
			return o.abandon(ctx, res, err)
		}
	}
	if o.medium != nil {
		if err := o.observeCommunication(ctx, &res); err != nil {
			return o.abandon(ctx, res, err)
		}
	}
	if err := o.act(ctx, &res, overrides); err != nil {
		return o.abandon(ctx, res, err)
	}

	res.Profile = o.state.Step()
	res.Payoffs = payoffVector(o.state, res.Profile)
	o.logger.DebugContext(ctx, "closed round", "round", res.Round, "profile", res.Profile, "payoffs", res.Payoffs)
	return res, nil
}

func (o *Orchestrator) abandon(ctx context.Context, res RoundResult, err error) (RoundResult, error) {
	o.logger.InfoContext(ctx, "round abandoned", "round", res.Round, "err", err)
	return RoundResult{}, err
}

func payoffVector(s *game.State, profile []int) []float64 {
	row, col := 0, 0
	if len(profile) > 0 {
		row = profile[0]
	}
	if len(profile) > 1 {
		col = profile[1]
	}
	return s.Model().Vector(row, col)
}

func (o *Orchestrator) observe(ctx context.Context, res *RoundResult) error {
	inputs := o.contexts()
	outs := fanout(ctx, o, inputs, func(ctx context.Context, p agent.DecisionProvider, in agent.Context) (string, error) {
		return p.Observe(ctx, in)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, out := range outs {
		if out.err != nil {
			o.fail(ctx, res, o.ids[i], agent.PhaseObserve, out.err)
			continue
		}
		o.remember(res, o.ids[i], agent.PhaseObserve, out.value)
	}
	return nil
}

// communicate collects every agent's message from the same pre-phase
// contexts, then sends them in agent order.
func (o *Orchestrator) communicate(ctx context.Context, res *RoundResult) error {
	inputs := o.contexts()
	outs := fanout(ctx, o, inputs, func(ctx context.Context, p agent.DecisionProvider, in agent.Context) (agent.Outgoing, error) {
		return p.Communicate(ctx, in)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, out := range outs {
		sender := o.ids[i]
		if out.err != nil {
			o.fail(ctx, res, sender, agent.PhaseCommunicate, out.err)
			continue
		}
		if out.value.Content == "" {
			continue
		}

		if len(out.value.Receivers) == 0 {
			res.Messages = append(res.Messages, o.medium.Broadcast(sender, out.value.Content)...)
			continue
		}
		for _, r := range out.value.Receivers {
			if !o.medium.Adjacent(sender, r) {
				res.RoutingMisses++
				o.logger.DebugContext(ctx, "routing miss", "from", sender, "to", r, "round", res.Round)
			}
		}
		msg, err := o.medium.Send(sender, out.value.Receivers, out.value.Content)
		if err != nil {
			o.fail(ctx, res, sender, agent.PhaseCommunicate, err)
			continue
		}
		res.Messages = append(res.Messages, msg)
	}
	return nil
}

// observeCommunication drains every inbox before any provider runs.
func (o *Orchestrator) observeCommunication(ctx context.Context, res *RoundResult) error {
	inputs := o.contexts()
	for i := range inputs {
		inputs[i].Messages = o.medium.PopForAgent(o.ids[i]).Flatten()
	}
	outs := fanout(ctx, o, inputs, func(ctx context.Context, p agent.DecisionProvider, in agent.Context) (string, error) {
		return p.ObserveCommunication(ctx, in)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, out := range outs {
		if out.err != nil {
			o.fail(ctx, res, o.ids[i], agent.PhaseObserveCommunication, out.err)
			continue
		}
		o.remember(res, o.ids[i], agent.PhaseObserveCommunication, out.value)
	}
	return nil
}

func (o *Orchestrator) act(ctx context.Context, res *RoundResult, overrides map[string]int) error {
	inputs := o.contexts()
	outs := fanout(ctx, o, inputs, func(ctx context.Context, p agent.DecisionProvider, in agent.Context) (int, error) {
		if a, ok := overrides[in.AgentID]; ok {
			return a, nil
		}
		return p.Act(ctx, in)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, out := range outs {
		id := o.ids[i]
		if out.err == nil {
			out.err = o.state.StepAgent(core.Action{AgentID: id, ActionIndex: out.value})
		}
		if out.err != nil {
			o.fail(ctx, res, id, agent.PhaseAct, out.err)
			if err := o.state.StepAgent(core.Action{AgentID: id, ActionIndex: 0}); err != nil {
				o.logger.ErrorContext(ctx, "default action rejected", "agent", id, "err", err)
			}
		}
	}
	return nil
}

type outcome[T any] struct {
	value T
	err   error
}

// fanout calls every provider for one phase, sequentially or concurrently.
// Results are indexed by agent slot.
func fanout[T any](ctx context.Context, o *Orchestrator, inputs []agent.Context, call func(context.Context, agent.DecisionProvider, agent.Context) (T, error)) []outcome[T] {
	out := make([]outcome[T], len(inputs))
	exec := func(i int) {
		if err := ctx.Err(); err != nil {
			out[i] = outcome[T]{err: err}
			return
		}
		provider := o.participants[i].Provider
		v, err := invoke(ctx, o.timeout, func(ctx context.Context) (T, error) {
			return call(ctx, provider, inputs[i])
		})
		out[i] = outcome[T]{value: v, err: err}
	}

	if !o.parallel {
		for i := range inputs {
			exec(i)
		}
		return out
	}

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exec(i)
		}(i)
	}
	wg.Wait()
	return out
}

// invoke runs fn under timeout and turns a panic into an error. A provider
// that ignores its context is abandoned once the deadline passes.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

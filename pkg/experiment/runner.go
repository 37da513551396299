// Package experiment runs multi-episode experiments: it builds an
// environment per episode, plays it to the configured length, records every
// round and aggregates per-episode statistics.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nordbyerik/gaims/internal/seed"
	"github.com/nordbyerik/gaims/pkg/config"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/messaging"
	"github.com/nordbyerik/gaims/pkg/providers"
)

var _ core.Experiment = (*Runner)(nil)

type Runner struct {
	cfg       *config.ExperimentConfig
	factory   *providers.Factory
	recorders []Recorder
	follow    chan<- messaging.Message
	logger    *slog.Logger
	seed      int64

	mu      sync.RWMutex
	status  core.ExperimentStatus
	stats   []EpisodeStats
	cancel  context.CancelFunc
	stopped bool
}

type RunnerParams struct {
	Factory   *providers.Factory
	Recorders []Recorder
	Follow    chan<- messaging.Message
	Logger    *slog.Logger
}

type RunnerOption func(*RunnerParams)

// WithFactory shares a provider factory, so episodes reuse LLM clients.
func WithFactory(f *providers.Factory) RunnerOption {
	return func(p *RunnerParams) {
		p.Factory = f
	}
}

func WithRecorder(r Recorder) RunnerOption {
	return func(p *RunnerParams) {
		p.Recorders = append(p.Recorders, r)
	}
}

// WithFollow mirrors every message sent during the experiment onto ch.
func WithFollow(ch chan<- messaging.Message) RunnerOption {
	return func(p *RunnerParams) {
		p.Follow = ch
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(p *RunnerParams) {
		p.Logger = logger
	}
}

// NewRunner validates cfg and fixes the experiment seed: cfg.Seed when set,
// otherwise a fresh crypto-random seed.
func NewRunner(cfg *config.ExperimentConfig, opts ...RunnerOption) (*Runner, error) {
	params := &RunnerParams{Logger: slog.Default()}
	for _, opt := range opts {
		opt(params)
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	if params.Factory == nil {
		params.Factory = providers.NewFactory(params.Logger)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s int64
	if cfg.Seed != nil {
		s = *cfg.Seed
	} else {
		var err error
		if s, err = seed.NewSeed(); err != nil {
			return nil, err
		}
	}

	return &Runner{
		cfg:       cfg,
		factory:   params.Factory,
		recorders: params.Recorders,
		follow:    params.Follow,
		logger:    params.Logger.With("experiment", cfg.Name),
		seed:      s,
	}, nil
}

// Seed returns the experiment seed. Episode i uses Seed()+i.
func (r *Runner) Seed() int64 {
	return r.seed
}

// Run plays every configured episode. It returns early on a construction
// error or when ctx is cancelled; Stop makes it return nil.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.status.Running {
		r.mu.Unlock()
		return fmt.Errorf("experiment %s is already running", r.cfg.Name)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = false
	r.status = core.ExperimentStatus{Running: true, StartTime: time.Now()}
	r.stats = nil
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.status.Running = false
		r.status.EndTime = time.Now()
		r.cancel = nil
		r.mu.Unlock()
	}()

	r.logger.Info("starting experiment", "episodes", r.cfg.Episodes, "rounds", r.cfg.Rounds, "seed", r.seed)
	for i := 0; i < r.cfg.Episodes; i++ {
		stats, err := r.runEpisode(ctx, i)
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			if !stopped {
				r.status.Errors = append(r.status.Errors, err)
			}
			r.mu.Unlock()
			if stopped && errors.Is(err, context.Canceled) {
				r.logger.Info("experiment stopped", "episode", i)
				return nil
			}
			return fmt.Errorf("episode %d: %w", i, err)
		}

		r.mu.Lock()
		r.stats = append(r.stats, stats)
		r.status.Episodes++
		r.mu.Unlock()
	}
	return nil
}

func (r *Runner) runEpisode(ctx context.Context, index int) (EpisodeStats, error) {
	episodeSeed := r.seed + int64(index)
	env, err := BuildEnv(ctx, r.cfg, r.factory, episodeSeed, r.logger)
	if err != nil {
		return EpisodeStats{}, err
	}
	if m := env.Orchestrator().Medium(); m != nil && r.follow != nil {
		if err := m.Subscribe(messaging.AllAgents, r.follow); err != nil {
			return EpisodeStats{}, err
		}
		defer func() {
			if dropped := m.Dropped(); dropped > 0 {
				r.logger.Warn("follow channel full, messages dropped", "episode", index, "dropped", dropped)
			}
			if err := m.Unsubscribe(messaging.AllAgents); err != nil {
				r.logger.Warn("failed to detach follow channel", "episode", index, "err", err)
			}
		}()
	}

	obs, info, err := env.Reset(ctx)
	if err != nil {
		return EpisodeStats{}, err
	}
	ep := Episode{
		ID:         uuid.New().String(),
		Index:      index,
		Experiment: r.cfg.Name,
		Seed:       episodeSeed,
		Agents:     env.Orchestrator().AgentIDs(),
		Payoffs:    obs.State.Payoffs,
		Equilibria: info.Equilibria,
		StartedAt:  obs.Timestamp,
	}
	logger := r.logger.With("episode", index, "episode_id", ep.ID)
	logger.Info("starting episode", "equilibria", info.Equilibria)
	r.record(ctx, func(rec Recorder) error { return rec.StartEpisode(ctx, ep) })

	var rounds []Round
	for {
		res, err := env.Step(ctx)
		if err != nil {
			return EpisodeStats{}, err
		}
		last := env.LastRound()
		round := Round{
			EpisodeID:     ep.ID,
			Round:         last.Round,
			Profile:       last.Profile,
			Payoffs:       last.Payoffs,
			Cumulative:    res.Reward,
			Equilibrium:   res.Info.IsEquilibrium(),
			Messages:      last.Messages,
			Observations:  last.Observations,
			Failures:      last.Failures,
			RoutingMisses: last.RoutingMisses,
		}
		rounds = append(rounds, round)
		logger.Debug("round closed", "round", round.Round, "profile", round.Profile, "utility", round.Cumulative)
		r.record(ctx, func(rec Recorder) error { return rec.RecordRound(ctx, round) })
		if res.Done {
			break
		}
	}

	stats := Summarize(ep, rounds, time.Since(ep.StartedAt))
	logger.Info("episode finished",
		"utility", stats.FinalUtility,
		"equilibrium_rate", stats.EquilibriumRate,
		"failures", stats.Failures)
	r.record(ctx, func(rec Recorder) error { return rec.FinishEpisode(ctx, stats) })
	return stats, nil
}

func (r *Runner) record(ctx context.Context, fn func(Recorder) error) {
	for _, rec := range r.recorders {
		if err := fn(rec); err != nil {
			r.logger.WarnContext(ctx, "recording failed", "err", err)
			r.mu.Lock()
			r.status.Errors = append(r.status.Errors, err)
			r.mu.Unlock()
		}
	}
}

// Stop cancels a running experiment. The episode in progress is abandoned.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.Running || r.cancel == nil {
		return fmt.Errorf("experiment %s is not running", r.cfg.Name)
	}
	r.stopped = true
	r.cancel()
	return nil
}

func (r *Runner) GetStatus() core.ExperimentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := r.status
	status.Errors = append([]error(nil), r.status.Errors...)
	return status
}

// Stats returns the statistics of every finished episode.
func (r *Runner) Stats() []EpisodeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EpisodeStats(nil), r.stats...)
}

// Package config loads experiment configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/messaging"
	"github.com/nordbyerik/gaims/pkg/payoff"
	"gopkg.in/yaml.v3"
)

const (
	ProviderScripted = "scripted"
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
)

type ExperimentConfig struct {
	Name     string `yaml:"name"`
	Episodes int    `yaml:"episodes"`
	Rounds   int    `yaml:"rounds"`
	// Seed pins every random draw. Nil picks a fresh seed per run.
	Seed *int64 `yaml:"seed"`
	// DecisionTimeout bounds each decision provider call. Zero disables it.
	DecisionTimeout time.Duration  `yaml:"decision_timeout"`
	Parallel        bool           `yaml:"parallel"`
	Phases          PhaseConfig    `yaml:"phases"`
	Game            GameConfig     `yaml:"game"`
	Topology        TopologyConfig `yaml:"topology"`
	Agents          []AgentConfig  `yaml:"agents"`
	Logging         LogConfig      `yaml:"logging"`
	Store           StoreConfig    `yaml:"store"`
	// StatsPath, if set, receives a CSV summary of every episode.
	StatsPath string `yaml:"stats_path"`
}

type PhaseConfig struct {
	Observe     bool `yaml:"observe"`
	Communicate bool `yaml:"communicate"`
}

type GameConfig struct {
	// Family is "random", "fixed" or a canonical family name.
	Family     string `yaml:"family"`
	NumActions int    `yaml:"num_actions"`
	MinPayoff  int    `yaml:"min_payoff"`
	MaxPayoff  int    `yaml:"max_payoff"`
	// Payoffs is the row-major [row][col][player] array for the fixed family.
	Payoffs     []float64 `yaml:"payoffs"`
	ActionNames []string  `yaml:"action_names"`
}

type TopologyConfig struct {
	Kind string `yaml:"kind"`
	// Seed drives the sparse generator.
	Seed int64 `yaml:"seed"`
}

type AgentConfig struct {
	ID string `yaml:"id"`
	// Provider is "scripted", "openai" or "gemini".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Persona  string `yaml:"persona"`
	// Strategy and Action configure scripted agents.
	Strategy string `yaml:"strategy"`
	Action   int    `yaml:"action"`
	Message  string `yaml:"message"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	// Path of the SQLite transcript database. Empty disables recording.
	Path string `yaml:"path"`
}

// envOverrides lists the environment variables that override file values.
type envOverrides struct {
	Rounds          int           `env:"GAIMS_ROUNDS"`
	Episodes        int           `env:"GAIMS_EPISODES"`
	Seed            string        `env:"GAIMS_SEED"`
	LogLevel        string        `env:"GAIMS_LOG_LEVEL"`
	StorePath       string        `env:"GAIMS_STORE_PATH"`
	DecisionTimeout time.Duration `env:"GAIMS_DECISION_TIMEOUT"`
}

// Default returns one episode of ten rounds between two scripted agents on a
// random 2x2 game with payoffs in [-10, 10], fully connected, with the
// communicate phase on and observe off.
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Name:            "default",
		Episodes:        1,
		Rounds:          10,
		DecisionTimeout: 30 * time.Second,
		Phases:          PhaseConfig{Observe: false, Communicate: true},
		Game: GameConfig{
			Family:     "random",
			NumActions: 2,
			MinPayoff:  -10,
			MaxPayoff:  10,
		},
		Topology: TopologyConfig{Kind: messaging.FullyConnected},
		Agents: []AgentConfig{
			{ID: "alice", Provider: ProviderScripted, Strategy: "tit_for_tat"},
			{ID: "bob", Provider: ProviderScripted, Strategy: "random"},
		},
		Logging: LogConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults, applies GAIMS_* environment
// overrides and validates the result. An empty path loads only defaults and
// overrides.
func LoadConfig(path string) (*ExperimentConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	for i := range cfg.Agents {
		if cfg.Agents[i].ID == "" {
			cfg.Agents[i].ID = "agent-" + uuid.New().String()
		}
		cfg.Agents[i].APIKey = os.ExpandEnv(cfg.Agents[i].APIKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from set GAIMS_* variables.
func (c *ExperimentConfig) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Rounds != 0 {
		c.Rounds = o.Rounds
	}
	if o.Episodes != 0 {
		c.Episodes = o.Episodes
	}
	if o.Seed != "" {
		seed, err := strconv.ParseInt(o.Seed, 10, 64)
		if err != nil {
			return fmt.Errorf("parse env: GAIMS_SEED: %w", err)
		}
		c.Seed = &seed
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.StorePath != "" {
		c.Store.Path = o.StorePath
	}
	if o.DecisionTimeout != 0 {
		c.DecisionTimeout = o.DecisionTimeout
	}
	return nil
}

var validLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "error": true}

var validTopologies = map[string]bool{
	messaging.FullyConnected: true,
	messaging.Sparse:         true,
	messaging.Linear:         true,
	messaging.Ring:           true,
	messaging.Star:           true,
}

// Validate checks that the configuration can build an experiment.
func (c *ExperimentConfig) Validate() error {
	if c.Episodes < 1 {
		return fmt.Errorf("%w: episodes must be positive, got %d", core.ErrConstruction, c.Episodes)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be positive, got %d", core.ErrConstruction, c.Rounds)
	}
	if c.DecisionTimeout < 0 {
		return fmt.Errorf("%w: decision_timeout must be non-negative, got %v", core.ErrConstruction, c.DecisionTimeout)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent is required", core.ErrConstruction)
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", core.ErrConstruction, a.ID)
		}
		seen[a.ID] = true
		switch strings.ToLower(a.Provider) {
		case "", ProviderScripted:
		case ProviderOpenAI, ProviderGemini:
			if a.Model == "" {
				return fmt.Errorf("%w: agent %s uses %s but names no model", core.ErrConstruction, a.ID, a.Provider)
			}
		default:
			return fmt.Errorf("%w: agent %s has invalid provider %q (valid: scripted, openai, gemini)",
				core.ErrConstruction, a.ID, a.Provider)
		}
	}
	if !validTopologies[c.Topology.Kind] {
		return fmt.Errorf("%w: invalid topology %q", core.ErrConstruction, c.Topology.Kind)
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level %q (valid: trace, debug, info, warn, error)", core.ErrConstruction, c.Logging.Level)
	}
	if _, err := c.Generator(); err != nil {
		return err
	}
	return nil
}

// Generator builds the payoff generator named by the game section.
func (c *ExperimentConfig) Generator() (payoff.Generator, error) {
	switch strings.ToLower(c.Game.Family) {
	case "", "random":
		return payoff.NewRandom(c.Game.NumActions, len(c.Agents), c.Game.MinPayoff, c.Game.MaxPayoff)
	case "fixed":
		m, err := payoff.FromFlat(c.Game.NumActions, len(c.Agents), c.Game.Payoffs)
		if err != nil {
			return nil, err
		}
		return payoff.NewFixed(m), nil
	default:
		if len(c.Agents) != 2 {
			return nil, fmt.Errorf("%w: family %s needs exactly 2 agents, got %d", core.ErrConstruction, c.Game.Family, len(c.Agents))
		}
		return payoff.Family(c.Game.Family)
	}
}

// AgentIDs returns agent ids in slot order.
func (c *ExperimentConfig) AgentIDs() []string {
	ids := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		ids[i] = a.ID
	}
	return ids
}

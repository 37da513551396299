package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nordbyerik/gaims/internal/logging"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/providers"
)

type ModelInfo struct {
	Id     string         // e.g. "gpt-4o-mini"
	Config map[string]any // model-specific configuration
}

// LLMAgent is a decision provider that prompts a language model for every
// phase and parses its replies.
type LLMAgent struct {
	id          string
	model       ModelInfo
	client      providers.Client
	persona     string
	actionNames []string
	prompts     Prompts
	logger      *slog.Logger
}

type AgentParams struct {
	Model       ModelInfo
	AgentID     string
	Client      providers.Client
	Persona     string
	ActionNames []string
	Prompts     Prompts
	Logger      *slog.Logger
}

type AgentOption func(*AgentParams)

func WithModel(model ModelInfo) AgentOption {
	return func(p *AgentParams) {
		p.Model = model
	}
}

func WithAgentId(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

func WithClient(c providers.Client) AgentOption {
	return func(p *AgentParams) {
		p.Client = c
	}
}

func WithPersona(persona string) AgentOption {
	return func(p *AgentParams) {
		p.Persona = persona
	}
}

// WithActionNames labels actions in prompts, e.g. Cooperate and Defect.
func WithActionNames(names ...string) AgentOption {
	return func(p *AgentParams) {
		p.ActionNames = names
	}
}

func WithPrompts(prompts Prompts) AgentOption {
	return func(p *AgentParams) {
		p.Prompts = prompts
	}
}

func WithLogger(logger *slog.Logger) AgentOption {
	return func(p *AgentParams) {
		p.Logger = logger
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		Model: ModelInfo{
			Id:     "gpt-4o-mini",
			Config: make(map[string]any),
		},
		AgentID: "agent-" + uuid.New().String(),
		Prompts: DefaultPrompts(),
		Logger:  slog.Default(),
	}
}

// NewLLMAgent creates a new LLM agent. A completion client is required.
func NewLLMAgent(opts ...AgentOption) (*LLMAgent, error) {
	params := defaultAgentParams()

	for _, opt := range opts {
		opt(params)
	}
	if params.Client == nil {
		return nil, fmt.Errorf("%w: llm agent %s has no completion client", core.ErrConstruction, params.AgentID)
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	return &LLMAgent{
		id:          params.AgentID,
		model:       params.Model,
		client:      params.Client,
		persona:     params.Persona,
		actionNames: params.ActionNames,
		prompts:     params.Prompts.withDefaults(),
		logger:      params.Logger.With("agent", params.AgentID),
	}, nil
}

func (a *LLMAgent) GetID() string {
	return a.id
}

func (a *LLMAgent) GetModel() ModelInfo {
	return a.model
}

func (a *LLMAgent) complete(ctx context.Context, phase Phase, prompt string) (string, error) {
	a.logger.Log(ctx, logging.LevelTrace, "prompt", "phase", phase, "text", prompt)
	response, err := a.client.Complete(ctx, a.model.Id, a.prompts.System, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %s completion: %v", core.ErrDecisionProvider, phase, err)
	}
	a.logger.Log(ctx, logging.LevelTrace, "response", "phase", phase, "text", response)
	return response, nil
}

func (a *LLMAgent) Observe(ctx context.Context, in Context) (string, error) {
	response, err := a.complete(ctx, PhaseObserve, observePrompt(in, a.persona, a.actionNames, a.prompts))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

func (a *LLMAgent) Communicate(ctx context.Context, in Context) (Outgoing, error) {
	response, err := a.complete(ctx, PhaseCommunicate, communicatePrompt(in, a.persona, a.actionNames, a.prompts))
	if err != nil {
		return Outgoing{}, err
	}
	return parseOutgoing(response), nil
}

func (a *LLMAgent) ObserveCommunication(ctx context.Context, in Context) (string, error) {
	prompt := observeCommunicationPrompt(in, a.persona, a.actionNames, a.prompts, in.Messages)
	response, err := a.complete(ctx, PhaseObserveCommunication, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// Act asks for an action and retries once with a reformulation request when
// the reply has no usable answer.
func (a *LLMAgent) Act(ctx context.Context, in Context) (int, error) {
	response, err := a.complete(ctx, PhaseAct, actPrompt(in, a.persona, a.actionNames, a.prompts))
	if err != nil {
		return 0, err
	}
	action, err := parseAction(response, in.NumActions())
	if err == nil {
		return action, nil
	}
	a.logger.Debug("retrying unparseable action", "round", in.Round, "err", err)

	options := make([]string, in.NumActions())
	for i := range options {
		options[i] = strconv.Itoa(i)
	}
	retry := fmt.Sprintf(RETRY_PROMPT_TEMPLATE, response, strings.Join(options, ", "))
	response, err = a.complete(ctx, PhaseAct, retry)
	if err != nil {
		return 0, err
	}
	action, err = parseAction(response, in.NumActions())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrDecisionProvider, err)
	}
	return action, nil
}

var (
	answerRe  = regexp.MustCompile(`(?i)ANSWER:?\s*\**\s*(-?\d+)`)
	integerRe = regexp.MustCompile(`-?\d+`)
	toRe      = regexp.MustCompile(`(?im)^\s*TO:\s*(.*)$`)
	messageRe = regexp.MustCompile(`(?is)FINAL_MESSAGE:?\s*(.*)$`)
)

var errNoAnswer = errors.New("no action in response")

// parseAction reads "ANSWER: n" or, failing that, the last integer in the
// response. The action must lie in [0, numActions).
func parseAction(response string, numActions int) (int, error) {
	var raw string
	if m := answerRe.FindAllStringSubmatch(response, -1); len(m) > 0 {
		raw = m[len(m)-1][1]
	} else if all := integerRe.FindAllString(response, -1); len(all) > 0 {
		raw = all[len(all)-1]
	} else {
		return 0, errNoAnswer
	}

	action, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("could not parse action %q: %v", raw, err)
	}
	if action < 0 || action >= numActions {
		return 0, fmt.Errorf("action %d outside [0, %d)", action, numActions)
	}
	return action, nil
}

// parseOutgoing reads an optional "TO:" line and the text after
// FINAL_MESSAGE. "TO: all" or no TO line addresses every partner.
func parseOutgoing(response string) Outgoing {
	var out Outgoing
	loc := messageRe.FindStringSubmatchIndex(response)
	if loc == nil {
		return out
	}
	out.Content = strings.TrimSpace(response[loc[2]:loc[3]])
	if out.Content == "" {
		return out
	}

	head := response[:loc[0]]
	if to := toRe.FindStringSubmatch(head); to != nil {
		for _, r := range strings.Split(to[1], ",") {
			r = strings.TrimSpace(r)
			if r == "" || strings.EqualFold(r, "all") {
				continue
			}
			out.Receivers = append(out.Receivers, r)
		}
	}
	return out
}

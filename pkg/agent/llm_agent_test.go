package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nordbyerik/gaims/internal/logging"
	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/messaging"
)

// MockLLMClient replies with queued responses and records every prompt.
type MockLLMClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	systems   []string
}

func (m *MockLLMClient) Complete(ctx context.Context, model string, system string, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, system)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "mock response", nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func pdContext() Context {
	return Context{
		AgentID: "alice",
		Slot:    0,
		Players: []string{"alice", "bob"},
		State: core.State{
			Round:             1,
			CumulativeUtility: []float64{3, 3},
			Payoffs: [][][]float64{
				{{3, 3}, {0, 5}},
				{{5, 0}, {1, 1}},
			},
			LastProfile: []int{0, 0},
		},
		Round:                 1,
		NumRounds:             5,
		CommunicationPartners: []string{"bob"},
		ObservationHistory:    []string{"bob cooperated"},
	}
}

func newTestAgent(t *testing.T, client *MockLLMClient, opts ...AgentOption) *LLMAgent {
	t.Helper()
	opts = append([]AgentOption{
		WithAgentId("alice"),
		WithClient(client),
		WithModel(ModelInfo{Id: "mock-model"}),
		WithLogger(logging.Discard()),
	}, opts...)
	a, err := NewLLMAgent(opts...)
	if err != nil {
		t.Fatalf("NewLLMAgent() error = %v", err)
	}
	return a
}

func TestNewLLMAgent(t *testing.T) {
	t.Run("requires a client", func(t *testing.T) {
		_, err := NewLLMAgent(WithAgentId("x"))
		if !errors.Is(err, core.ErrConstruction) {
			t.Errorf("NewLLMAgent() error = %v, want ErrConstruction", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		a, err := NewLLMAgent(WithClient(&MockLLMClient{}))
		if err != nil {
			t.Fatalf("NewLLMAgent() error = %v", err)
		}
		if !strings.HasPrefix(a.GetID(), "agent-") {
			t.Errorf("GetID() = %q, want agent- prefix", a.GetID())
		}
		if got := a.GetModel().Id; got != "gpt-4o-mini" {
			t.Errorf("GetModel().Id = %q, want gpt-4o-mini", got)
		}
	})
}

func TestLLMAgentAct(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		responses []string
		want      int
		wantErr   bool
		wantCalls int
	}{
		{"answer tag", []string{"I will defect.\nANSWER: 1"}, 1, false, 1},
		{"lowercase tag", []string{"answer: 0"}, 0, false, 1},
		{"last integer fallback", []string{"Options were 0 and 1, I pick 1"}, 1, false, 1},
		{"retry after no number", []string{"I cooperate", "ANSWER: 0"}, 0, false, 2},
		{"retry after out of range", []string{"ANSWER: 7", "ANSWER: 1"}, 1, false, 2},
		{"fails after retry", []string{"no idea", "still no idea"}, 0, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLLMClient{responses: tt.responses}
			a := newTestAgent(t, client)

			got, err := a.Act(ctx, pdContext())
			if tt.wantErr {
				if !errors.Is(err, core.ErrDecisionProvider) {
					t.Fatalf("Act() error = %v, want ErrDecisionProvider", err)
				}
			} else if err != nil {
				t.Fatalf("Act() error = %v", err)
			} else if got != tt.want {
				t.Errorf("Act() = %d, want %d", got, tt.want)
			}
			if len(client.prompts) != tt.wantCalls {
				t.Errorf("completion calls = %d, want %d", len(client.prompts), tt.wantCalls)
			}
		})
	}

	t.Run("client error", func(t *testing.T) {
		a := newTestAgent(t, &MockLLMClient{err: errors.New("rate limited")})
		if _, err := a.Act(ctx, pdContext()); !errors.Is(err, core.ErrDecisionProvider) {
			t.Errorf("Act() error = %v, want ErrDecisionProvider", err)
		}
	})
}

func TestLLMAgentPrompts(t *testing.T) {
	ctx := context.Background()
	client := &MockLLMClient{responses: []string{"ANSWER: 0"}}
	a := newTestAgent(t, client,
		WithPersona("You are a cautious negotiator."),
		WithActionNames("Cooperate", "Defect"))

	if _, err := a.Act(ctx, pdContext()); err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	prompt := client.prompts[0]
	for _, want := range []string{
		"You are a cautious negotiator.",
		"There are 2 players in total.",
		"You are alice.",
		"It is currently round 2 of 5.",
		"communicate with all other players",
		"If you choose Defect",
		"Your Result = 5 Other Player's Result = 0",
		"Your prior observations: bob cooperated",
		"0 for Cooperate, 1 for Defect",
		"ANSWER",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("act prompt missing %q:\n%s", want, prompt)
		}
	}
	if client.systems[0] != SYSTEM_PROMPT {
		t.Errorf("system prompt = %q, want default", client.systems[0])
	}

	t.Run("column player sees its own payoffs", func(t *testing.T) {
		client := &MockLLMClient{responses: []string{"ANSWER: 0"}}
		b := newTestAgent(t, client, WithAgentId("bob"))
		in := pdContext()
		in.AgentID, in.Slot = "bob", 1
		in.State.Payoffs = [][][]float64{
			{{1, 2}, {3, 4}},
			{{5, 6}, {7, 8}},
		}
		if _, err := b.Act(ctx, in); err != nil {
			t.Fatalf("Act() error = %v", err)
		}
		// bob plays 1 against alice's 0: payoffs[0][1] = {3, 4}
		if !strings.Contains(client.prompts[0], "Your Result = 4 Other Player's Result = 3") {
			t.Errorf("column payoffs wrong:\n%s", client.prompts[0])
		}
	})
}

func TestLLMAgentCommunicate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		response string
		want     Outgoing
	}{
		{"message to all partners", "FINAL_MESSAGE: let's both cooperate", Outgoing{Content: "let's both cooperate"}},
		{"explicit receivers", "thinking...\nTO: bob, carol\nFINAL_MESSAGE: deal?", Outgoing{Receivers: []string{"bob", "carol"}, Content: "deal?"}},
		{"to all", "TO: all\nFINAL_MESSAGE: hi", Outgoing{Content: "hi"}},
		{"no marker means no message", "I'd rather stay quiet.", Outgoing{}},
		{"blank message", "FINAL_MESSAGE:   ", Outgoing{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAgent(t, &MockLLMClient{responses: []string{tt.response}})
			got, err := a.Communicate(ctx, pdContext())
			if err != nil {
				t.Fatalf("Communicate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Communicate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLLMAgentObserveCommunication(t *testing.T) {
	client := &MockLLMClient{responses: []string{"  bob wants to cooperate  "}}
	a := newTestAgent(t, client)

	in := pdContext()
	in.Messages = []messaging.Message{{ID: 1, From: "bob", To: []string{"alice"}, Content: "cooperate?"}}
	got, err := a.ObserveCommunication(context.Background(), in)
	if err != nil {
		t.Fatalf("ObserveCommunication() error = %v", err)
	}
	if got != "bob wants to cooperate" {
		t.Errorf("ObserveCommunication() = %q", got)
	}
	if !strings.Contains(client.prompts[0], "Player bob said: cooperate?") {
		t.Errorf("prompt missing message:\n%s", client.prompts[0])
	}
}

func TestLLMAgentObserve(t *testing.T) {
	client := &MockLLMClient{responses: []string{"noted"}}
	a := newTestAgent(t, client)
	got, err := a.Observe(context.Background(), pdContext())
	if err != nil || got != "noted" {
		t.Fatalf("Observe() = %q, %v", got, err)
	}
	if !strings.Contains(client.prompts[0], "Current Utility for Each Player: alice: 3, bob: 3") {
		t.Errorf("observe prompt missing utilities:\n%s", client.prompts[0])
	}
}

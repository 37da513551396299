package agent

import (
	"fmt"
	"strings"

	"github.com/nordbyerik/gaims/pkg/messaging"
)

const (
	SYSTEM_PROMPT = `You are an AI agent participating in a repeated game with other players. Each round every player chooses one action at the same time, and the combination of actions decides everyone's result. Your goal is to maximize your own total result after the final round.`

	OBSERVE_CUE = `Given the current state, game rules, and your past observations, write down your thoughts, plans, and any new observations.`

	COMMUNICATE_CUE = `You may address specific players by starting a line with "TO:" followed by their names separated by commas, or "TO: all". Enter your message on a line beginning with FINAL_MESSAGE: (or leave it out to send nothing).`

	OBSERVE_COMMUNICATION_CUE = `Given these messages, game rules, and prior information, write down your thoughts, plans, and any new observations.`

	ACT_CUE = `Very briefly think step by step about which action to choose and then provide your answer. Your answer should follow the string "ANSWER" like so: ANSWER: <number>`

	RETRY_PROMPT_TEMPLATE = `Your previous response did not include a valid action. Here was your response:

%s

Reply with exactly one line of the form "ANSWER: <number>" where the number is one of: %s.`
)

// Prompts holds the text an LLMAgent sends around the generated game
// description. Zero fields fall back to DefaultPrompts.
type Prompts struct {
	System                  string
	ObserveCue              string
	CommunicateCue          string
	ObserveCommunicationCue string
	ActCue                  string
}

func DefaultPrompts() Prompts {
	return Prompts{
		System:                  SYSTEM_PROMPT,
		ObserveCue:              OBSERVE_CUE,
		CommunicateCue:          COMMUNICATE_CUE,
		ObserveCommunicationCue: OBSERVE_COMMUNICATION_CUE,
		ActCue:                  ACT_CUE,
	}
}

func (p Prompts) withDefaults() Prompts {
	d := DefaultPrompts()
	if p.System == "" {
		p.System = d.System
	}
	if p.ObserveCue == "" {
		p.ObserveCue = d.ObserveCue
	}
	if p.CommunicateCue == "" {
		p.CommunicateCue = d.CommunicateCue
	}
	if p.ObserveCommunicationCue == "" {
		p.ObserveCommunicationCue = d.ObserveCommunicationCue
	}
	if p.ActCue == "" {
		p.ActCue = d.ActCue
	}
	return p
}

// actionName returns the display name of action i.
func actionName(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("Action %d", i)
}

// payoffsFor returns (own, opponent) results when the agent plays own and
// the opponent plays other.
func payoffsFor(in Context, own, other int) (float64, float64) {
	row, col := own, other
	if in.Slot == 1 {
		row, col = other, own
	}
	vec := in.State.Payoffs[row][col]
	var mine, theirs float64
	if in.Slot < len(vec) {
		mine = vec[in.Slot]
	}
	if opp := in.Opponent(); opp < len(vec) {
		theirs = vec[opp]
	}
	return mine, theirs
}

// intro renders the shared game description that starts every prompt.
func intro(in Context, persona string, actionNames []string) string {
	var b strings.Builder
	if persona != "" {
		b.WriteString(persona)
		b.WriteString("\n")
	}
	b.WriteString("You are participating in a game.\n")
	fmt.Fprintf(&b, "There are %d players in total.\n", len(in.Players))
	fmt.Fprintf(&b, "You are %s.\n", in.AgentID)
	switch {
	case in.NumRounds == 1:
		b.WriteString("You will play a single round.\n")
	case in.NumRounds > 1:
		fmt.Fprintf(&b, "You will play %d rounds in total.\n", in.NumRounds)
		fmt.Fprintf(&b, "It is currently round %d of %d.\n", in.Round+1, in.NumRounds)
	default:
		b.WriteString("You will play an unknown or very large number of rounds.\n")
		fmt.Fprintf(&b, "This is round %d.\n", in.Round+1)
	}

	switch {
	case len(in.CommunicationPartners) == 0:
		b.WriteString("You cannot communicate with any other players.\n")
	case len(in.CommunicationPartners) == len(in.Players)-1:
		b.WriteString("You will be allowed to communicate with all other players.\n")
	default:
		fmt.Fprintf(&b, "You will be allowed to communicate with the following players: %s.\n",
			strings.Join(in.CommunicationPartners, ", "))
	}

	fmt.Fprintf(&b, "Payoff Details (for you, %s):\n", in.AgentID)
	n := in.NumActions()
	for own := 0; own < n; own++ {
		fmt.Fprintf(&b, "  If you choose %s, your potential outcomes are:\n", actionName(actionNames, own))
		for other := 0; other < n; other++ {
			mine, theirs := payoffsFor(in, own, other)
			fmt.Fprintf(&b, "    - Paired against another player's action %s: Your Result = %g Other Player's Result = %g\n",
				actionName(actionNames, other), mine, theirs)
		}
	}

	if in.State.LastProfile != nil && in.Opponent() < len(in.State.LastProfile) {
		fmt.Fprintf(&b, "Last round you played %s and your opponent played %s.\n",
			actionName(actionNames, in.State.LastProfile[in.Slot]),
			actionName(actionNames, in.State.LastProfile[in.Opponent()]))
	}
	if len(in.ObservationHistory) > 0 {
		fmt.Fprintf(&b, "Your prior observations: %s\n", in.ObservationHistory[len(in.ObservationHistory)-1])
	}
	return b.String()
}

func utilityLine(in Context) string {
	parts := make([]string, len(in.State.CumulativeUtility))
	for i, u := range in.State.CumulativeUtility {
		name := fmt.Sprintf("player %d", i)
		if i < len(in.Players) {
			name = in.Players[i]
		}
		parts[i] = fmt.Sprintf("%s: %g", name, u)
	}
	return fmt.Sprintf("Current Utility for Each Player: %s\n", strings.Join(parts, ", "))
}

func observePrompt(in Context, persona string, names []string, p Prompts) string {
	return intro(in, persona, names) + utilityLine(in) + p.ObserveCue
}

func communicatePrompt(in Context, persona string, names []string, p Prompts) string {
	partners := "nobody"
	if len(in.CommunicationPartners) > 0 {
		partners = strings.Join(in.CommunicationPartners, ", ")
	}
	return intro(in, persona, names) +
		fmt.Sprintf("You may now send a message. You can send to: %s\n", partners) +
		p.CommunicateCue
}

func observeCommunicationPrompt(in Context, persona string, names []string, p Prompts, msgs []messaging.Message) string {
	var b strings.Builder
	b.WriteString(intro(in, persona, names))
	if len(msgs) == 0 {
		b.WriteString("You received no messages this round.\n")
	} else {
		b.WriteString("Here are the messages you received:\n")
		for _, m := range msgs {
			fmt.Fprintf(&b, "Player %s said: %s\n", m.From, m.Content)
		}
	}
	b.WriteString(p.ObserveCommunicationCue)
	return b.String()
}

func actPrompt(in Context, persona string, names []string, p Prompts) string {
	options := make([]string, in.NumActions())
	for i := range options {
		options[i] = fmt.Sprintf("%d for %s", i, actionName(names, i))
	}
	return intro(in, persona, names) +
		fmt.Sprintf("Which action will you choose? %s\n", strings.Join(options, ", ")) +
		p.ActCue
}

package agent

import (
	"context"
	"testing"

	"github.com/nordbyerik/gaims/pkg/core"
	"github.com/nordbyerik/gaims/pkg/messaging"
)

func roundContext(slot int, last []int) Context {
	return Context{
		AgentID: "p",
		Slot:    slot,
		Players: []string{"a", "b"},
		State: core.State{
			Payoffs:     [][][]float64{{{3, 3}, {0, 5}}, {{5, 0}, {1, 1}}},
			LastProfile: last,
		},
	}
}

func TestTitForTat(t *testing.T) {
	ctx := context.Background()
	tft := NewTitForTat(0)

	tests := []struct {
		name string
		slot int
		last []int
		want int
	}{
		{"opens with cooperate", 0, nil, 0},
		{"copies column defect", 0, []int{0, 1}, 1},
		{"copies row defect", 1, []int{1, 0}, 1},
		{"returns to cooperate", 0, []int{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tft.Act(ctx, roundContext(tt.slot, tt.last))
			if err != nil || got != tt.want {
				t.Errorf("Act() = %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestGrim(t *testing.T) {
	ctx := context.Background()
	g := NewGrim(0, 1)

	steps := []struct {
		last []int
		want int
	}{
		{nil, 0},
		{[]int{0, 0}, 0},
		{[]int{0, 1}, 1},
		{[]int{1, 0}, 1}, // stays triggered after the opponent returns to 0
		{nil, 0},         // next episode
	}
	for i, s := range steps {
		got, _ := g.Act(ctx, roundContext(0, s.last))
		if got != s.want {
			t.Errorf("step %d: Act() = %d, want %d", i, got, s.want)
		}
	}
}

func TestRandomIsSeeded(t *testing.T) {
	ctx := context.Background()
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 20; i++ {
		x, _ := a.Act(ctx, roundContext(0, nil))
		y, _ := b.Act(ctx, roundContext(0, nil))
		if x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
		if x < 0 || x > 1 {
			t.Fatalf("draw %d out of range: %d", i, x)
		}
	}
}

func TestConstant(t *testing.T) {
	ctx := context.Background()
	c := NewConstant(1, "I always defect")
	got, _ := c.Act(ctx, roundContext(0, nil))
	if got != 1 {
		t.Errorf("Act() = %d, want 1", got)
	}
	out, _ := c.Communicate(ctx, roundContext(0, nil))
	if out.Content != "I always defect" || out.Receivers != nil {
		t.Errorf("Communicate() = %+v", out)
	}

	in := roundContext(0, nil)
	in.Messages = []messaging.Message{{From: "b", Content: "hello"}}
	obs, _ := c.ObserveCommunication(ctx, in)
	if obs != "b: hello" {
		t.Errorf("ObserveCommunication() = %q", obs)
	}
}

func TestScripted(t *testing.T) {
	for _, name := range []string{"constant", "random", "tit_for_tat", "tft", "grim", ""} {
		if _, err := Scripted(name, 0, 2, "", 1); err != nil {
			t.Errorf("Scripted(%q) error = %v", name, err)
		}
	}
	if _, err := Scripted("martingale", 0, 2, "", 1); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if _, err := Scripted("grim", 0, 1, "", 1); err == nil {
		t.Error("expected error for grim with one action")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nordbyerik/gaims/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "solve", "topology"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}

func TestRunCmd_Flags(t *testing.T) {
	cmd := newRunCmd()
	for _, flag := range []string{"config", "episodes", "rounds", "family", "topology", "seed", "db", "stats", "follow"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing flag --%s", flag)
		}
	}
}

func TestSolveCmd(t *testing.T) {
	out, err := execute(t, "solve", "--family", "pd", "--seed", "7")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !strings.Contains(out, "prisoners_dilemma") {
		t.Errorf("output missing family name:\n%s", out)
	}
	// defect/defect is the unique equilibrium of every prisoner's dilemma
	if !strings.Contains(out, "Pure equilibria: [(1, 1)]") {
		t.Errorf("output missing equilibrium:\n%s", out)
	}

	again, err := execute(t, "solve", "--family", "pd", "--seed", "7")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if again != out {
		t.Errorf("same seed gave different output:\n%s\nvs\n%s", out, again)
	}

	if _, err := execute(t, "solve", "--family", "nope"); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestTopologyCmd(t *testing.T) {
	out, err := execute(t, "topology", "--kind", "star", "A", "B", "C")
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	for _, want := range []string{"star topology with 3 agents", "A -> [B, C]", "B -> [A]", "C -> [A]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "topology", "--kind", "ring", "A", "A"); err == nil {
		t.Error("expected error for duplicate agents")
	}
	if _, err := execute(t, "topology"); err == nil {
		t.Error("expected error without agents")
	}
}

func TestRunCmd_RecordsTranscript(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs", "gaims.db")
	statsPath := filepath.Join(dir, "stats.csv")

	out, err := execute(t, "run",
		"--episodes", "2",
		"--rounds", "3",
		"--family", "pd",
		"--seed", "11",
		"--db", dbPath,
		"--stats", statsPath,
		"--follow",
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "seed 11") {
		t.Errorf("output missing seed:\n%s", out)
	}
	if strings.Count(out, "rounds=3") != 2 {
		t.Errorf("expected two episode summaries:\n%s", out)
	}

	f, err := os.Open(statsPath)
	if err != nil {
		t.Fatalf("open stats: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	// header plus one row per agent per episode
	if len(rows) != 5 {
		t.Errorf("got %d csv rows, want 5", len(rows))
	}

	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	eps, err := db.Episodes(context.Background(), "")
	if err != nil {
		t.Fatalf("Episodes: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("got %d stored episodes, want 2", len(eps))
	}
	for _, ep := range eps {
		if !ep.Finished || ep.Rounds != 3 {
			t.Errorf("episode %s = %+v", ep.ID, ep)
		}
	}
}

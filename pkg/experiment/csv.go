package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
)

var csvHeader = []string{
	"Episode", "EpisodeID", "Rounds", "Agent", "FinalUtility", "MeanPayoff",
	"StandardDeviation", "EquilibriumRate", "Failures", "RoutingMisses",
}

// CSVRecorder writes one row per agent per finished episode.
type CSVRecorder struct {
	w       *csv.Writer
	closer  io.Closer
	started bool
	mu      sync.Mutex
}

func NewCSVRecorder(w io.Writer) *CSVRecorder {
	return &CSVRecorder{w: csv.NewWriter(w)}
}

// CreateCSV creates (or truncates) the stats file at path.
func CreateCSV(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create stats file: %w", err)
	}
	r := NewCSVRecorder(f)
	r.closer = f
	return r, nil
}

func (r *CSVRecorder) StartEpisode(context.Context, Episode) error { return nil }

func (r *CSVRecorder) RecordRound(context.Context, Round) error { return nil }

func (r *CSVRecorder) FinishEpisode(_ context.Context, s EpisodeStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		if err := r.w.Write(csvHeader); err != nil {
			return err
		}
		r.started = true
	}
	for p, id := range s.Agents {
		row := []string{
			strconv.Itoa(s.Index),
			s.EpisodeID,
			strconv.Itoa(s.Rounds),
			id,
			formatFloat(s.FinalUtility[p]),
			formatFloat(s.MeanPayoff[p]),
			formatFloat(s.StdDevPayoff[p]),
			formatFloat(s.EquilibriumRate),
			strconv.Itoa(s.Failures),
			strconv.Itoa(s.RoutingMisses),
		}
		if err := r.w.Write(row); err != nil {
			return err
		}
	}
	r.w.Flush()
	return r.w.Error()
}

func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if r.closer != nil {
		return r.closer.Close()
	}
	return r.w.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

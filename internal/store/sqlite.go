package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nordbyerik/gaims/pkg/experiment"
	"github.com/nordbyerik/gaims/pkg/messaging"
	_ "modernc.org/sqlite" // SQLite driver
)

var _ experiment.Recorder = (*SQLiteStore)(nil)

// SQLiteStore records experiment transcripts: episodes, rounds, messages and
// observations.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// only plain slices of numbers and strings are stored
		panic(fmt.Sprintf("store: marshal %T: %v", v, err))
	}
	return string(data)
}

func (s *SQLiteStore) StartEpisode(ctx context.Context, ep experiment.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, idx, experiment, seed, agents, payoffs, equilibria, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Index, ep.Experiment, ep.Seed,
		mustJSON(ep.Agents), mustJSON(ep.Payoffs), mustJSON(ep.Equilibria),
		ep.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert episode %s: %w", ep.ID, err)
	}
	return nil
}

type failureRow struct {
	Agent string `json:"agent"`
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// RecordRound stores a round with its messages and observations in one
// transaction.
func (s *SQLiteStore) RecordRound(ctx context.Context, r experiment.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	failures := make([]failureRow, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = failureRow{Agent: f.AgentID, Phase: f.Phase}
		if f.Err != nil {
			failures[i].Error = f.Err.Error()
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rounds (episode_id, round, profile, payoffs, cumulative, equilibrium, routing_misses, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EpisodeID, r.Round, mustJSON(r.Profile), mustJSON(r.Payoffs), mustJSON(r.Cumulative),
		r.Equilibrium, r.RoutingMisses, mustJSON(failures)); err != nil {
		return fmt.Errorf("failed to insert round %d: %w", r.Round, err)
	}

	for _, m := range r.Messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (episode_id, seq, round, sender, receivers, content, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.EpisodeID, m.ID, m.Round, m.From, mustJSON(m.To), m.Content,
			m.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", m.ID, err)
		}
	}

	for _, o := range r.Observations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO observations (episode_id, round, agent_id, phase, text)
			VALUES (?, ?, ?, ?, ?)`,
			r.EpisodeID, r.Round, o.AgentID, string(o.Phase), o.Text); err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) FinishEpisode(ctx context.Context, st experiment.EpisodeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET finished_at = ?, rounds = ?, final_utility = ?, mean_payoff = ?,
			stddev_payoff = ?, equilibrium_rate = ?, failures = ?, routing_misses = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), st.Rounds,
		mustJSON(st.FinalUtility), mustJSON(st.MeanPayoff), mustJSON(st.StdDevPayoff),
		st.EquilibriumRate, st.Failures, st.RoutingMisses, st.EpisodeID)
	if err != nil {
		return fmt.Errorf("failed to finish episode %s: %w", st.EpisodeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("episode %s not found", st.EpisodeID)
	}
	return nil
}

// EpisodeSummary is a stored episode row.
type EpisodeSummary struct {
	ID              string
	Index           int
	Experiment      string
	Seed            int64
	Agents          []string
	Rounds          int
	FinalUtility    []float64
	EquilibriumRate float64
	Finished        bool
}

// Episodes lists the stored episodes of experiment, or of all experiments
// when experiment is empty, in start order.
func (s *SQLiteStore) Episodes(ctx context.Context, experimentName string) ([]EpisodeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idx, experiment, seed, agents, rounds, final_utility, equilibrium_rate, finished_at
		FROM episodes
		WHERE ? = '' OR experiment = ?
		ORDER BY started_at, idx`, experimentName, experimentName)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeSummary
	for rows.Next() {
		var (
			e        EpisodeSummary
			agents   string
			rounds   sql.NullInt64
			utility  sql.NullString
			rate     sql.NullFloat64
			finished sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Index, &e.Experiment, &e.Seed, &agents, &rounds, &utility, &rate, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(agents), &e.Agents); err != nil {
			return nil, fmt.Errorf("failed to decode agents of %s: %w", e.ID, err)
		}
		if utility.Valid {
			if err := json.Unmarshal([]byte(utility.String), &e.FinalUtility); err != nil {
				return nil, fmt.Errorf("failed to decode utility of %s: %w", e.ID, err)
			}
		}
		e.Rounds = int(rounds.Int64)
		e.EquilibriumRate = rate.Float64
		e.Finished = finished.Valid
		out = append(out, e)
	}
	return out, rows.Err()
}

// Profiles returns the joint action of every stored round of an episode.
func (s *SQLiteStore) Profiles(ctx context.Context, episodeID string) ([][]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT profile FROM rounds WHERE episode_id = ? ORDER BY round`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var out [][]int
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		var profile []int
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

// Messages returns the stored messages of an episode in sequence order.
func (s *SQLiteStore) Messages(ctx context.Context, episodeID string) ([]messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, round, sender, receivers, content, sent_at
		FROM messages WHERE episode_id = ? ORDER BY seq`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []messaging.Message
	for rows.Next() {
		var (
			m         messaging.Message
			receivers string
			sentAt    string
		)
		if err := rows.Scan(&m.ID, &m.Round, &m.From, &receivers, &m.Content, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(receivers), &m.To); err != nil {
			return nil, fmt.Errorf("failed to decode receivers: %w", err)
		}
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, sentAt); err != nil {
			return nil, fmt.Errorf("failed to parse message time: %w", err)
		}
		m.Delivered = true
		out = append(out, m)
	}
	return out, rows.Err()
}

// ObservationCount returns how many observations an agent produced in an
// episode.
func (s *SQLiteStore) ObservationCount(ctx context.Context, episodeID, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE episode_id = ? AND agent_id = ?`,
		episodeID, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return n, nil
}

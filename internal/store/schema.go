// Package store persists experiment transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    idx INTEGER NOT NULL,
    experiment TEXT NOT NULL,
    seed INTEGER NOT NULL,
    agents TEXT NOT NULL,      -- JSON array of agent ids in slot order
    payoffs TEXT NOT NULL,     -- JSON [row][col][player]
    equilibria TEXT NOT NULL,  -- JSON array of {Row, Col}
    started_at TEXT NOT NULL,

    -- filled when the episode finishes
    finished_at TEXT,
    rounds INTEGER,
    final_utility TEXT,        -- JSON
    mean_payoff TEXT,          -- JSON
    stddev_payoff TEXT,        -- JSON
    equilibrium_rate REAL,
    failures INTEGER,
    routing_misses INTEGER
);

CREATE TABLE IF NOT EXISTS rounds (
    episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    profile TEXT NOT NULL,     -- JSON
    payoffs TEXT NOT NULL,     -- JSON
    cumulative TEXT NOT NULL,  -- JSON
    equilibrium INTEGER NOT NULL,
    routing_misses INTEGER NOT NULL,
    failures TEXT,             -- JSON array of {agent, phase, error}
    PRIMARY KEY (episode_id, round)
);

CREATE TABLE IF NOT EXISTS messages (
    episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    round INTEGER NOT NULL,
    sender TEXT NOT NULL,
    receivers TEXT NOT NULL,   -- JSON array
    content TEXT NOT NULL,
    sent_at TEXT NOT NULL,
    PRIMARY KEY (episode_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_round ON messages(episode_id, round);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    agent_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_agent ON observations(episode_id, agent_id);
`

// InitSchema creates the schema on a fresh database. Existing databases are
// left as they are.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := getSchemaVersion(ctx, db); err == nil {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

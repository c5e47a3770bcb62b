package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		match_id   TEXT PRIMARY KEY,
		map_name   TEXT NOT NULL,
		mode       TEXT NOT NULL DEFAULT 'unknown',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		match_id     TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		win          INTEGER NOT NULL DEFAULT 0,
		data         TEXT NOT NULL,
		updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (match_id, round_number)
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id     TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		captured_at  TIMESTAMP NOT NULL,
		state        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_round ON history (match_id, round_number, captured_at)`,
	`CREATE TABLE IF NOT EXISTS gsi_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id    TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		payload     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gsi_snapshots_match ON gsi_snapshots (match_id, captured_at)`,
}

// SQLiteStore implements Store on a local SQLite file. It is the default
// when no DATABASE_URL is configured: no server, no credentials, works on
// the machine the game runs on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection
	// pool beyond this.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteMigrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migration failed: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertMatch inserts a match record if it does not exist yet.
func (s *SQLiteStore) UpsertMatch(ctx context.Context, matchID, mapName, mode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, map_name, mode, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (match_id) DO NOTHING
	`, matchID, mapName, mode, time.Now().UTC())
	return err
}

// UpsertRound writes a round summary, replacing any previous write for the
// same (match, round) pair.
func (s *SQLiteStore) UpsertRound(ctx context.Context, matchID string, roundNumber int, data any, win bool) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal round data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rounds (match_id, round_number, win, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id, round_number)
		DO UPDATE SET win = excluded.win, data = excluded.data, updated_at = excluded.updated_at
	`, matchID, roundNumber, win, string(doc), time.Now().UTC())
	return err
}

// AppendHistorySnapshot inserts a structured state capture.
func (s *SQLiteStore) AppendHistorySnapshot(ctx context.Context, matchID string, roundNumber int, state any) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (match_id, round_number, captured_at, state)
		VALUES (?, ?, ?, ?)
	`, matchID, roundNumber, time.Now().UTC(), string(doc))
	return err
}

// AppendRawSnapshot archives a full raw payload.
func (s *SQLiteStore) AppendRawSnapshot(ctx context.Context, matchID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gsi_snapshots (match_id, captured_at, payload) VALUES (?, ?, ?)
	`, matchID, time.Now().UTC(), string(payload))
	return err
}

// ListMatches returns all recorded matches, newest first.
func (s *SQLiteStore) ListMatches(ctx context.Context) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, map_name, mode, created_at
		FROM matches ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.MatchID, &m.MapName, &m.Mode, &m.CreatedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListRounds returns a match's rounds ordered by round number.
func (s *SQLiteStore) ListRounds(ctx context.Context, matchID string) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, round_number, win, data, updated_at
		FROM rounds WHERE match_id = ? ORDER BY round_number
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		var r Round
		var data string
		if err := rows.Scan(&r.MatchID, &r.RoundNumber, &r.Win, &data, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Data = json.RawMessage(data)
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// ListRoundHistory returns the state captures of one round in capture order.
func (s *SQLiteStore) ListRoundHistory(ctx context.Context, matchID string, roundNumber int) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, round_number, captured_at, state
		FROM history WHERE match_id = ? AND round_number = ?
		ORDER BY captured_at, id
	`, matchID, roundNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var h HistoryRecord
		var state string
		if err := rows.Scan(&h.MatchID, &h.RoundNumber, &h.CapturedAt, &state); err != nil {
			return nil, err
		}
		h.State = json.RawMessage(state)
		records = append(records, h)
	}
	return records, rows.Err()
}

// LatestState returns the most recent capture for a round.
func (s *SQLiteStore) LatestState(ctx context.Context, matchID string, roundNumber int) (*HistoryRecord, error) {
	var h HistoryRecord
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT match_id, round_number, captured_at, state
		FROM history WHERE match_id = ? AND round_number = ?
		ORDER BY captured_at DESC, id DESC LIMIT 1
	`, matchID, roundNumber).Scan(&h.MatchID, &h.RoundNumber, &h.CapturedAt, &state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	h.State = json.RawMessage(state)
	return &h, nil
}

// Stats aggregates recorded rounds into headline performance numbers.
func (s *SQLiteStore) Stats(ctx context.Context) (*AggregateStats, error) {
	stats := &AggregateStats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&stats.Matches); err != nil {
		return nil, err
	}

	var wins, deaths int
	var avgKills sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(win), 0),
		       COALESCE(SUM(CASE WHEN json_extract(data, '$.died') THEN 1 ELSE 0 END), 0),
		       AVG(json_extract(data, '$.roundKills'))
		FROM rounds
	`).Scan(&stats.Rounds, &wins, &deaths, &avgKills)
	if err != nil {
		return nil, err
	}

	if stats.Rounds > 0 {
		stats.WinRate = float64(wins) / float64(stats.Rounds) * 100
		stats.SurvivalRate = float64(stats.Rounds-deaths) / float64(stats.Rounds) * 100
	}
	if avgKills.Valid {
		stats.AvgKillsPerRound = avgKills.Float64
	}
	return stats, nil
}

// Clear wipes all collections.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	for _, table := range []string{"matches", "rounds", "history", "gsi_snapshots"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations run at connect time; every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		match_id   TEXT PRIMARY KEY,
		map_name   TEXT NOT NULL,
		mode       TEXT NOT NULL DEFAULT 'unknown',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		match_id     TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		win          BOOLEAN NOT NULL DEFAULT false,
		data         JSONB NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (match_id, round_number)
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id           BIGSERIAL PRIMARY KEY,
		match_id     TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		captured_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		state        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_round ON history (match_id, round_number, captured_at)`,
	`CREATE TABLE IF NOT EXISTS gsi_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		match_id    TEXT NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		payload     JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gsi_snapshots_match ON gsi_snapshots (match_id, captured_at)`,
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertMatch inserts a match record if it does not exist yet.
func (s *PostgresStore) UpsertMatch(ctx context.Context, matchID, mapName, mode string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (match_id, map_name, mode)
		VALUES ($1, $2, $3)
		ON CONFLICT (match_id) DO NOTHING
	`, matchID, mapName, mode)
	return err
}

// UpsertRound writes a round summary, replacing any previous write for the
// same (match, round) pair.
func (s *PostgresStore) UpsertRound(ctx context.Context, matchID string, roundNumber int, data any, win bool) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal round data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rounds (match_id, round_number, win, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (match_id, round_number)
		DO UPDATE SET win = EXCLUDED.win, data = EXCLUDED.data, updated_at = now()
	`, matchID, roundNumber, win, doc)
	return err
}

// AppendHistorySnapshot inserts a structured state capture. Time series,
// never deduplicated.
func (s *PostgresStore) AppendHistorySnapshot(ctx context.Context, matchID string, roundNumber int, state any) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO history (match_id, round_number, state) VALUES ($1, $2, $3)
	`, matchID, roundNumber, doc)
	return err
}

// AppendRawSnapshot archives a full raw payload for offline analysis.
func (s *PostgresStore) AppendRawSnapshot(ctx context.Context, matchID string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gsi_snapshots (match_id, payload) VALUES ($1, $2)
	`, matchID, payload)
	return err
}

// ListMatches returns all recorded matches, newest first.
func (s *PostgresStore) ListMatches(ctx context.Context) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `
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
func (s *PostgresStore) ListRounds(ctx context.Context, matchID string) ([]Round, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, round_number, win, data, updated_at
		FROM rounds WHERE match_id = $1 ORDER BY round_number
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		var r Round
		if err := rows.Scan(&r.MatchID, &r.RoundNumber, &r.Win, &r.Data, &r.UpdatedAt); err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// ListRoundHistory returns the state captures of one round in capture order.
func (s *PostgresStore) ListRoundHistory(ctx context.Context, matchID string, roundNumber int) ([]HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, round_number, captured_at, state
		FROM history WHERE match_id = $1 AND round_number = $2
		ORDER BY captured_at
	`, matchID, roundNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var h HistoryRecord
		if err := rows.Scan(&h.MatchID, &h.RoundNumber, &h.CapturedAt, &h.State); err != nil {
			return nil, err
		}
		records = append(records, h)
	}
	return records, rows.Err()
}

// LatestState returns the most recent capture for a round.
func (s *PostgresStore) LatestState(ctx context.Context, matchID string, roundNumber int) (*HistoryRecord, error) {
	var h HistoryRecord
	err := s.pool.QueryRow(ctx, `
		SELECT match_id, round_number, captured_at, state
		FROM history WHERE match_id = $1 AND round_number = $2
		ORDER BY captured_at DESC LIMIT 1
	`, matchID, roundNumber).Scan(&h.MatchID, &h.RoundNumber, &h.CapturedAt, &h.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// Stats aggregates recorded rounds into headline performance numbers.
func (s *PostgresStore) Stats(ctx context.Context) (*AggregateStats, error) {
	stats := &AggregateStats{}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM matches`).Scan(&stats.Matches); err != nil {
		return nil, err
	}

	var wins, deaths int
	var avgKills *float64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE win),
		       COUNT(*) FILTER (WHERE (data->>'died')::boolean),
		       AVG((data->>'roundKills')::numeric)
		FROM rounds
	`).Scan(&stats.Rounds, &wins, &deaths, &avgKills)
	if err != nil {
		return nil, err
	}

	if stats.Rounds > 0 {
		stats.WinRate = float64(wins) / float64(stats.Rounds) * 100
		stats.SurvivalRate = float64(stats.Rounds-deaths) / float64(stats.Rounds) * 100
	}
	if avgKills != nil {
		stats.AvgKillsPerRound = *avgKills
	}
	return stats, nil
}

// Clear wipes all collections.
func (s *PostgresStore) Clear(ctx context.Context) error {
	for _, table := range []string{"matches", "rounds", "history", "gsi_snapshots"} {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}

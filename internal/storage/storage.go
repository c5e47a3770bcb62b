// Package storage persists observed match state. Two implementations share
// one narrow interface: a Postgres store for hosted setups and a zero-config
// SQLite store for local play. Callers treat every failure as non-fatal;
// losing a write must never stall ingestion.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by point lookups with no matching row.
var ErrNotFound = errors.New("storage: not found")

// Match is one detected match.
type Match struct {
	MatchID   string    `json:"matchId"`
	MapName   string    `json:"mapName"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// Round is one finished round with its summary document.
type Round struct {
	MatchID     string          `json:"matchId"`
	RoundNumber int             `json:"roundNumber"`
	Win         bool            `json:"win"`
	Data        json.RawMessage `json:"data"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// HistoryRecord is one structured state capture within a round.
type HistoryRecord struct {
	MatchID     string          `json:"matchId"`
	RoundNumber int             `json:"roundNumber"`
	CapturedAt  time.Time       `json:"capturedAt"`
	State       json.RawMessage `json:"state"`
}

// AggregateStats summarizes recorded performance across all matches.
type AggregateStats struct {
	Matches          int     `json:"matches"`
	Rounds           int     `json:"rounds"`
	WinRate          float64 `json:"winRate"`
	AvgKillsPerRound float64 `json:"kpr"`
	SurvivalRate     float64 `json:"survivalRate"`
}

// Store is the persistence gateway. Write operations are idempotent by
// natural key: matches insert-if-absent by id, rounds replace by
// (match, round), history and raw snapshots always append.
type Store interface {
	UpsertMatch(ctx context.Context, matchID, mapName, mode string) error
	UpsertRound(ctx context.Context, matchID string, roundNumber int, data any, win bool) error
	AppendHistorySnapshot(ctx context.Context, matchID string, roundNumber int, state any) error
	AppendRawSnapshot(ctx context.Context, matchID string, payload []byte) error

	ListMatches(ctx context.Context) ([]Match, error)
	ListRounds(ctx context.Context, matchID string) ([]Round, error)
	ListRoundHistory(ctx context.Context, matchID string, roundNumber int) ([]HistoryRecord, error)
	LatestState(ctx context.Context, matchID string, roundNumber int) (*HistoryRecord, error)
	Stats(ctx context.Context) (*AggregateStats, error)

	// Clear wipes all collections. Test and maintenance use only.
	Clear(ctx context.Context) error
	Close() error
}

package coach

import "time"

// HistoryEntry is the per-round summary kept for AI context and persisted
// as the round document. Entries are unique by round number within a match.
type HistoryEntry struct {
	Round      int    `json:"round"`
	Result     string `json:"result"`
	Reason     string `json:"reason"`
	Died       bool   `json:"died"`
	RoundKills int    `json:"roundKills"`
	Damage     int    `json:"damage"`
	TeamAtTime string `json:"teamAtTime"`
}

// historyLimit bounds the in-memory ring; the persistence layer keeps
// everything.
const historyLimit = 5

// MatchState identifies the match currently being observed.
type MatchState struct {
	MatchID   string    `json:"matchId"`
	MapName   string    `json:"mapName"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"startedAt"`
}

// IngestResult is the outcome reported back to the game client.
type IngestResult string

const (
	// ResultIgnored means the payload carried no usable map state.
	ResultIgnored IngestResult = "ignored"
	// ResultProcessed means the snapshot was logged and evaluated.
	ResultProcessed IngestResult = "processed"
	// ResultOK means the snapshot was accepted outside live play.
	ResultOK IngestResult = "ok"
)

// Score is the CT/T scoreline.
type Score struct {
	CT int `json:"ct"`
	T  int `json:"t"`
}

// Status is the answer to "is a game running and where are we".
type Status struct {
	Status string `json:"status"`
	Map    string `json:"map,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Round  int    `json:"round,omitempty"`
	Score  *Score `json:"score,omitempty"`
}

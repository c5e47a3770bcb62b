// Package coach is the orchestration core: it consumes game-state
// snapshots, tracks match and round boundaries, runs the advisory rule
// engines and fans results out to speech, persistence and observers.
package coach

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"cs2coach/internal/advisor"
	"cs2coach/internal/gsi"
	"cs2coach/internal/speech"
	"cs2coach/internal/storage"
)

// persistTimeout bounds each background write so a hung database cannot
// accumulate goroutines forever.
const persistTimeout = 10 * time.Second

// Options wires a Coach. Store and Dispatcher are required; the rest have
// working defaults.
type Options struct {
	Store      storage.Store
	Dispatcher *speech.Dispatcher

	// ResetSession is invoked when a new match starts, so conversational
	// context from the previous game is discarded. Optional.
	ResetSession func()

	// LogDir is where per-match JSONL logs are written. Empty disables
	// flat-file logging.
	LogDir string

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Coach holds all live match state. All methods are safe for concurrent
// use; ingestion is serialized under one mutex so snapshot ordering is
// preserved end to end.
type Coach struct {
	store      storage.Store
	dispatcher *speech.Dispatcher
	economy    *advisor.EconomyAdvisor
	combat     *advisor.CombatAdvisor

	resetSession func()
	logDir       string
	now          func() time.Time

	mu       sync.Mutex
	latest   *gsi.Snapshot
	match    *MatchState
	matchLog *storage.MatchLog
	history  []HistoryEntry

	bg sync.WaitGroup
}

// New creates a Coach from opts.
func New(opts Options) *Coach {
	c := &Coach{
		store:        opts.Store,
		dispatcher:   opts.Dispatcher,
		economy:      advisor.NewEconomyAdvisor(),
		combat:       advisor.NewCombatAdvisor(),
		resetSession: opts.ResetSession,
		logDir:       opts.LogDir,
		now:          opts.Clock,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Ingest processes one raw snapshot payload and reports how it was
// handled: "ignored" when unusable, "processed" during live play, "ok"
// otherwise. Persistence runs in the background; a failing store never
// delays the response to the game client.
func (c *Coach) Ingest(payload []byte) IngestResult {
	snap, err := gsi.Decode(payload)
	if err != nil {
		log.Printf("[Coach] Dropping malformed snapshot: %v", err)
		return ResultIgnored
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = snap
	if !snap.HasMap() {
		return ResultIgnored
	}

	if snap.RoundPhase() == gsi.PhaseOver {
		c.recordRoundEnd(snap)
	}

	if snap.Map.Phase != gsi.PhaseLive {
		return ResultOK
	}

	if c.match == nil {
		c.startMatch(snap)
	}
	matchID := c.match.MatchID
	roundNumber := snap.Map.Round

	if c.matchLog != nil {
		if err := c.matchLog.Append(payload); err != nil {
			log.Printf("[Coach] Match log write failed: %v", err)
		}
	}

	raw := append([]byte(nil), payload...)
	state := buildStateDocument(snap)
	c.persistAsync("history snapshot", func(ctx context.Context) error {
		return c.store.AppendHistorySnapshot(ctx, matchID, roundNumber, state)
	})
	c.persistAsync("raw snapshot", func(ctx context.Context) error {
		return c.store.AppendRawSnapshot(ctx, matchID, raw)
	})

	advisories := c.economy.Evaluate(snap)
	if snap.RoundPhase() == gsi.PhaseLive {
		advisories = append(advisories, c.combat.Evaluate(snap, c.now())...)
	}
	if len(advisories) > 0 && c.dispatcher != nil {
		c.dispatcher.Dispatch(advisories)
	}

	return ResultProcessed
}

// startMatch opens match state for the game now in progress. Caller holds
// the mutex.
func (c *Coach) startMatch(snap *gsi.Snapshot) {
	matchID := "match_" + c.now().Format("20060102_150405")
	mapName := snap.Map.Name
	if mapName == "" {
		mapName = "unknown"
	}
	mode := snap.Map.Mode
	if mode == "" {
		mode = "unknown"
	}

	c.match = &MatchState{
		MatchID:   matchID,
		MapName:   mapName,
		Mode:      mode,
		StartedAt: c.now(),
	}
	log.Printf("[Coach] Match started: %s on %s (%s)", matchID, mapName, mode)

	if c.resetSession != nil {
		c.resetSession()
	}

	c.persistAsync("match record", func(ctx context.Context) error {
		return c.store.UpsertMatch(ctx, matchID, mapName, mode)
	})

	if c.logDir != "" {
		matchLog, err := storage.OpenMatchLog(c.logDir, matchID)
		if err != nil {
			log.Printf("[Coach] Failed to open match log: %v", err)
		} else {
			c.matchLog = matchLog
			log.Printf("[Coach] Logging raw snapshots to %s", filepath.Clean(matchLog.Path()))
		}
	}
}

// recordRoundEnd folds a round-over snapshot into the history ring and
// persists the round summary. Repeated round-over ticks for the same round
// are absorbed by the round-number check. Caller holds the mutex.
func (c *Coach) recordRoundEnd(snap *gsi.Snapshot) {
	roundNumber := snap.Map.Round
	for _, e := range c.history {
		if e.Round == roundNumber {
			return
		}
	}

	entry := HistoryEntry{Round: roundNumber}
	if snap.Round != nil {
		entry.Result = snap.Round.WinTeam
		entry.Reason = snap.Round.Bomb
	}
	if p := snap.Player; p != nil {
		entry.Died = p.State.Health == 0
		entry.RoundKills = p.State.RoundKills
		entry.Damage = p.State.RoundTotalDamage
		entry.TeamAtTime = p.Team
	}

	c.history = append(c.history, entry)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}

	if c.match != nil {
		matchID := c.match.MatchID
		win := entry.Result != "" && entry.Result == entry.TeamAtTime
		c.persistAsync("round summary", func(ctx context.Context) error {
			return c.store.UpsertRound(ctx, matchID, roundNumber, entry, win)
		})
	}
}

// persistAsync runs a store write off the ingestion path. Failures are
// logged and swallowed.
func (c *Coach) persistAsync(what string, op func(context.Context) error) {
	if c.store == nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			log.Printf("[Coach] Failed to persist %s: %v", what, err)
		}
	}()
}

// stateDocument is the trimmed per-tick capture written to the history
// store: enough to replay a round without archiving every payload field.
type stateDocument struct {
	Player statePlayer `json:"player"`
	Map    stateMap    `json:"map"`
}

type statePlayer struct {
	Health   int                   `json:"health"`
	Armor    int                   `json:"armor"`
	Money    int                   `json:"money"`
	Position string                `json:"position,omitempty"`
	Activity string                `json:"activity"`
	Weapons  map[string]gsi.Weapon `json:"weapons,omitempty"`
}

type stateMap struct {
	Mode   string       `json:"mode"`
	Phase  string       `json:"phase"`
	TeamCT gsi.TeamInfo `json:"team_ct"`
	TeamT  gsi.TeamInfo `json:"team_t"`
}

func buildStateDocument(snap *gsi.Snapshot) stateDocument {
	doc := stateDocument{
		Map: stateMap{
			Mode:   snap.Map.Mode,
			Phase:  snap.Map.Phase,
			TeamCT: snap.Map.TeamCT,
			TeamT:  snap.Map.TeamT,
		},
	}
	if p := snap.Player; p != nil {
		doc.Player = statePlayer{
			Health:   p.State.Health,
			Armor:    p.State.Armor,
			Money:    p.State.Money,
			Position: p.Position,
			Activity: p.Activity,
			Weapons:  p.Weapons,
		}
	}
	return doc
}

// Latest returns the most recent snapshot, nil before first contact.
func (c *Coach) Latest() *gsi.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// History returns a copy of the recent round summaries, oldest first.
func (c *Coach) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// ActiveMatch returns the current match, nil when none has been detected.
func (c *Coach) ActiveMatch() *MatchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.match == nil {
		return nil
	}
	m := *c.match
	return &m
}

// Status reports whether a game is visible and where it stands.
func (c *Coach) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == nil || !c.latest.HasMap() {
		return Status{Status: "no_game_detected"}
	}
	m := c.latest.Map
	return Status{
		Status: "active",
		Map:    m.Name,
		Mode:   m.Mode,
		Round:  m.Round,
		Score:  &Score{CT: m.TeamCT.Score, T: m.TeamT.Score},
	}
}

// Close waits for background persistence and closes the match log.
func (c *Coach) Close() error {
	c.bg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matchLog != nil {
		return c.matchLog.Close()
	}
	return nil
}

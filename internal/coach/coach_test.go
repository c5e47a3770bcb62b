package coach

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cs2coach/internal/speech"
	"cs2coach/internal/storage"
)

// fakeStore records writes for inspection. Reads are unused by the coach.
type fakeStore struct {
	mu        sync.Mutex
	matches   map[string]string // matchID -> mapName
	rounds    map[string]bool   // "matchID/round" -> win
	histories int
	raws      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[string]string),
		rounds:  make(map[string]bool),
	}
}

func (f *fakeStore) UpsertMatch(_ context.Context, matchID, mapName, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.matches[matchID]; !ok {
		f.matches[matchID] = mapName
	}
	return nil
}

func (f *fakeStore) UpsertRound(_ context.Context, matchID string, roundNumber int, _ any, win bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[fmt.Sprintf("%s/%d", matchID, roundNumber)] = win
	return nil
}

func (f *fakeStore) AppendHistorySnapshot(_ context.Context, _ string, _ int, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories++
	return nil
}

func (f *fakeStore) AppendRawSnapshot(_ context.Context, _ string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws++
	return nil
}

func (f *fakeStore) ListMatches(context.Context) ([]storage.Match, error) { return nil, nil }
func (f *fakeStore) ListRounds(context.Context, string) ([]storage.Round, error) {
	return nil, nil
}
func (f *fakeStore) ListRoundHistory(context.Context, string, int) ([]storage.HistoryRecord, error) {
	return nil, nil
}
func (f *fakeStore) LatestState(context.Context, string, int) (*storage.HistoryRecord, error) {
	return nil, storage.ErrNotFound
}
func (f *fakeStore) Stats(context.Context) (*storage.AggregateStats, error) {
	return &storage.AggregateStats{}, nil
}
func (f *fakeStore) Clear(context.Context) error { return nil }
func (f *fakeStore) Close() error                { return nil }

func testCoach(t *testing.T, store storage.Store) (*Coach, *int) {
	t.Helper()
	resets := 0
	c := New(Options{
		Store:        store,
		Dispatcher:   speech.NewDispatcher(speech.NoopSpeaker{}),
		ResetSession: func() { resets++ },
		LogDir:       t.TempDir(),
		Clock: func() time.Time {
			return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	return c, &resets
}

func livePayload(round int, roundPhase string) []byte {
	return []byte(fmt.Sprintf(`{
		"map": {
			"name": "de_dust2", "mode": "competitive", "phase": "live", "round": %d,
			"team_ct": {"score": 1}, "team_t": {"score": %d}
		},
		"round": {"phase": "%s", "win_team": "T", "bomb": "exploded"},
		"player": {
			"team": "CT", "activity": "playing",
			"state": {"health": 100, "armor": 100, "helmet": true, "money": 4000, "round_kills": 1, "round_totaldmg": 75}
		}
	}`, round, round, roundPhase))
}

func TestIngest_NoMapIsIgnored(t *testing.T) {
	c, _ := testCoach(t, newFakeStore())
	defer c.Close()

	if got := c.Ingest([]byte(`{"provider": {"name": "cs2"}}`)); got != ResultIgnored {
		t.Errorf("Got %q, want ignored", got)
	}
	// The snapshot is still retained for /status and /ask.
	if c.Latest() == nil {
		t.Error("Mapless snapshot was not retained")
	}
}

func TestIngest_MalformedPayload(t *testing.T) {
	c, _ := testCoach(t, newFakeStore())
	defer c.Close()

	if got := c.Ingest([]byte(`{"map": `)); got != ResultIgnored {
		t.Errorf("Got %q, want ignored", got)
	}
}

func TestIngest_WarmupIsOK(t *testing.T) {
	c, _ := testCoach(t, newFakeStore())
	defer c.Close()

	payload := []byte(`{"map": {"name": "de_dust2", "phase": "warmup", "round": 0}}`)
	if got := c.Ingest(payload); got != ResultOK {
		t.Errorf("Got %q, want ok", got)
	}
	if c.ActiveMatch() != nil {
		t.Error("Warmup started a match")
	}
}

func TestIngest_LiveStartsMatch(t *testing.T) {
	store := newFakeStore()
	c, resets := testCoach(t, store)

	if got := c.Ingest(livePayload(3, "live")); got != ResultProcessed {
		t.Fatalf("Got %q, want processed", got)
	}

	match := c.ActiveMatch()
	if match == nil {
		t.Fatal("No match started")
	}
	if match.MatchID != "match_20260901_120000" {
		t.Errorf("Match ID %q, want wall-clock identity", match.MatchID)
	}
	if *resets != 1 {
		t.Errorf("Session reset %d times on match start, want 1", *resets)
	}

	// A second live tick joins the same match.
	c.Ingest(livePayload(3, "live"))
	if got := c.ActiveMatch().MatchID; got != match.MatchID {
		t.Errorf("Match ID changed mid-match: %q", got)
	}

	c.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.matches[match.MatchID] != "de_dust2" {
		t.Errorf("Match not persisted: %+v", store.matches)
	}
	if store.histories != 2 || store.raws != 2 {
		t.Errorf("Persisted %d histories and %d raws, want 2 each", store.histories, store.raws)
	}
}

func TestRoundEnd_RecordedOnce(t *testing.T) {
	store := newFakeStore()
	c, _ := testCoach(t, store)

	c.Ingest(livePayload(4, "live"))
	matchID := c.ActiveMatch().MatchID

	// Round-over ticks repeat until the next round loads.
	for i := 0; i < 3; i++ {
		c.Ingest(livePayload(4, "over"))
	}

	history := c.History()
	if len(history) != 1 {
		t.Fatalf("Recorded %d history entries, want 1", len(history))
	}
	entry := history[0]
	if entry.Round != 4 || entry.Result != "T" || entry.Reason != "exploded" {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Died || entry.RoundKills != 1 || entry.Damage != 75 {
		t.Errorf("Player stats wrong: %+v", entry)
	}

	c.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	win, ok := store.rounds[fmt.Sprintf("%s/4", matchID)]
	if !ok {
		t.Fatalf("Round not persisted: %+v", store.rounds)
	}
	// CT player, T won the round.
	if win {
		t.Error("Lost round persisted as a win")
	}
	if len(store.rounds) != 1 {
		t.Errorf("Persisted %d rounds, want 1", len(store.rounds))
	}
}

func TestHistory_RingKeepsLastFive(t *testing.T) {
	c, _ := testCoach(t, newFakeStore())
	defer c.Close()

	for round := 1; round <= 7; round++ {
		c.Ingest(livePayload(round, "live"))
		c.Ingest(livePayload(round, "over"))
	}

	history := c.History()
	if len(history) != 5 {
		t.Fatalf("History holds %d entries, want 5", len(history))
	}
	if history[0].Round != 3 || history[4].Round != 7 {
		t.Errorf("Ring kept wrong rounds: first %d, last %d", history[0].Round, history[4].Round)
	}
}

func TestStatus(t *testing.T) {
	c, _ := testCoach(t, newFakeStore())
	defer c.Close()

	if got := c.Status(); got.Status != "no_game_detected" {
		t.Errorf("Initial status %q, want no_game_detected", got.Status)
	}

	c.Ingest(livePayload(3, "live"))
	status := c.Status()
	if status.Status != "active" || status.Map != "de_dust2" || status.Round != 3 {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.Score == nil || status.Score.CT != 1 || status.Score.T != 3 {
		t.Errorf("Unexpected score: %+v", status.Score)
	}
}

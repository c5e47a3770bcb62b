package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"cs2coach/internal/coach"
	"cs2coach/internal/speech"
	"cs2coach/internal/storage"
)

// memStore is the minimal Store needed by the HTTP surface tests.
type memStore struct {
	matches []storage.Match
	rounds  []storage.Round
}

func (m *memStore) UpsertMatch(context.Context, string, string, string) error { return nil }
func (m *memStore) UpsertRound(context.Context, string, int, any, bool) error { return nil }
func (m *memStore) AppendHistorySnapshot(context.Context, string, int, any) error {
	return nil
}
func (m *memStore) AppendRawSnapshot(context.Context, string, []byte) error { return nil }
func (m *memStore) ListMatches(context.Context) ([]storage.Match, error) {
	return m.matches, nil
}
func (m *memStore) ListRounds(context.Context, string) ([]storage.Round, error) {
	return m.rounds, nil
}
func (m *memStore) ListRoundHistory(context.Context, string, int) ([]storage.HistoryRecord, error) {
	return nil, nil
}
func (m *memStore) LatestState(context.Context, string, int) (*storage.HistoryRecord, error) {
	return nil, storage.ErrNotFound
}
func (m *memStore) Stats(context.Context) (*storage.AggregateStats, error) {
	return &storage.AggregateStats{Matches: len(m.matches)}, nil
}
func (m *memStore) Clear(context.Context) error { return nil }
func (m *memStore) Close() error                { return nil }

func testServer(t *testing.T) (*Server, *coach.Coach) {
	t.Helper()
	store := &memStore{}
	c := coach.New(coach.Options{
		Store:      store,
		Dispatcher: speech.NewDispatcher(speech.NoopSpeaker{}),
	})
	t.Cleanup(func() { c.Close() })
	return NewServer(":0", c, store, nil, NewHub()), c
}

func postJSON(t *testing.T, handler http.Handler, path, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST %s returned %d: %s", path, rec.Code, rec.Body.String())
	}
	var parsed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("Response not JSON: %v (%s)", err, rec.Body.String())
	}
	return parsed
}

func TestIngestContract(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"no map block", `{"provider": {"name": "cs2"}}`, "ignored"},
		{"warmup", `{"map": {"name": "de_dust2", "phase": "warmup", "round": 0}}`, "ok"},
		{
			"live play",
			`{"map": {"name": "de_dust2", "phase": "live", "round": 1},
			  "round": {"phase": "live"},
			  "player": {"team": "CT", "activity": "playing", "state": {"health": 100}}}`,
			"processed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, handler, "/", tc.payload)
			if resp["status"] != tc.want {
				t.Errorf("Got status %v, want %q", resp["status"], tc.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if status["status"] != "no_game_detected" {
		t.Errorf("Got %v, want no_game_detected", status["status"])
	}

	postJSON(t, handler, "/", `{"map": {"name": "de_inferno", "mode": "competitive", "phase": "live", "round": 6,
		"team_ct": {"score": 4}, "team_t": {"score": 2}},
		"round": {"phase": "freezetime"},
		"player": {"team": "T", "activity": "playing", "state": {"health": 100, "armor": 100, "helmet": true, "money": 5000}}}`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
	if status["status"] != "active" || status["map"] != "de_inferno" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestAskValidation(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"question": `, "Invalid JSON"},
		{"missing question", `{}`, "No question provided"},
		{"no game data", `{"question": "what do I buy"}`, "No game data available. Make sure CS2 is running and sending GSI data."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, handler, "/ask", tc.body)
			if resp["error"] != tc.want {
				t.Errorf("Got error %v, want %q", resp["error"], tc.want)
			}
		})
	}
}

func TestAskWithoutBrain(t *testing.T) {
	server, c := testServer(t)
	handler := server.Handler()

	c.Ingest([]byte(`{"map": {"name": "de_dust2", "phase": "warmup"}}`))

	resp := postJSON(t, handler, "/ask", `{"question": "any advice"}`)
	if resp["error"] != "AI coach is not configured." {
		t.Errorf("Got %v", resp["error"])
	}
}

func TestAPIListsAreNeverNull(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	for _, path := range []string{"/api/matches", "/api/matches/match_001/rounds", "/api/matches/match_001/rounds/2/history"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s returned %d", path, rec.Code)
			continue
		}
		body := bytes.TrimSpace(rec.Body.Bytes())
		if string(body) == "null" {
			t.Errorf("GET %s returned null, want []", path)
		}
	}
}

func TestRoundHistoryBadRoundNumber(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/match_001/rounds/nope/history", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Got %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/stats returned %d", rec.Code)
	}

	var stats storage.AggregateStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Response not JSON: %v", err)
	}
}

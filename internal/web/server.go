// Package web exposes the coach over HTTP and websocket: the game posts
// snapshots to the root endpoint, companion devices query status and ask
// questions, and dashboards read match history from the API routes.
package web

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"cs2coach/internal/brain"
	"cs2coach/internal/coach"
	"cs2coach/internal/storage"
)

// maxIngestBytes caps snapshot payload size. GSI ticks are a few KB.
const maxIngestBytes = 1 << 20

// Server is the HTTP surface of the coach.
type Server struct {
	coach    *coach.Coach
	store    storage.Store
	brain    *brain.Brain
	hub      *Hub
	upgrader websocket.Upgrader

	httpServer *http.Server
	stopHub    chan struct{}
}

// NewServer wires the HTTP surface. brain may be nil when no AI endpoint
// is configured; /ask degrades accordingly.
func NewServer(addr string, c *coach.Coach, store storage.Store, b *brain.Brain, hub *Hub) *Server {
	s := &Server{
		coach: c,
		store: store,
		brain: b,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The game and companion devices connect from other hosts on
			// the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		stopHub: make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/matches", s.handleMatches).Methods(http.MethodGet)
	api.HandleFunc("/matches/{matchId}/rounds", s.handleRounds).Methods(http.MethodGet)
	api.HandleFunc("/matches/{matchId}/rounds/{round}/history", s.handleRoundHistory).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
		// No global write timeout: /ask blocks on the AI cooldown and /ws
		// is long-lived.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start runs the hub and serves HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run(s.stopHub)
	log.Printf("[Web] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopHub)
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}

	result := s.coach.Ingest(payload)
	if result == coach.ResultProcessed {
		s.hub.BroadcastStatus(s.coach.Status())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(result)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coach.Status())
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Vision   *bool  `json:"vision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Invalid JSON"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": "No question provided"})
		return
	}

	latest := s.coach.Latest()
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"error": "No game data available. Make sure CS2 is running and sending GSI data.",
		})
		return
	}
	if s.brain == nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": "AI coach is not configured."})
		return
	}

	includeVision := true
	if req.Vision != nil {
		includeVision = *req.Vision
	}

	response := s.brain.Ask(r.Context(), req.Question, latest, s.coach.History(), includeVision)
	writeJSON(w, http.StatusOK, map[string]string{
		"question": req.Question,
		"response": response,
	})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.store.ListMatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []storage.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	rounds, err := s.store.ListRounds(r.Context(), matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	if rounds == nil {
		rounds = []storage.Round{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleRoundHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	matchID := vars["matchId"]
	roundNumber, err := strconv.Atoi(vars["round"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}

	records, err := s.store.ListRoundHistory(r.Context(), matchID, roundNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list round history")
		return
	}
	if records == nil {
		records = []storage.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Web] Websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, 64)}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting of the coach.
type Config struct {
	// ListenAddr is the HTTP bind address the game posts snapshots to.
	ListenAddr string

	// DatabaseURL selects Postgres when set; empty falls back to the
	// local SQLite file.
	DatabaseURL string

	// DataDir holds the SQLite database, per-match JSONL logs and the AI
	// cooldown ledger.
	DataDir string

	// BrainEndpoint is the AI sidecar chat URL. Empty disables /ask.
	BrainEndpoint string
	BrainAPIKey   string

	// SpeechEndpoint is the TTS sidecar URL. Empty means silent dispatch.
	SpeechEndpoint string

	// CooldownInterval is the minimum spacing between AI calls.
	CooldownInterval time.Duration
}

// SQLitePath is where the fallback database lives inside DataDir.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "cs2coach.db")
}

// MatchLogDir is where per-match JSONL logs are written.
func (c *Config) MatchLogDir() string {
	return filepath.Join(c.DataDir, "matches")
}

// CooldownFile is the flat file holding the last AI call timestamp.
func (c *Config) CooldownFile() string {
	return filepath.Join(c.DataDir, ".last_api_call")
}

// Load reads configuration from the environment. A .env file is loaded
// from the first of a few conventional locations, if present.
func Load() *Config {
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("[Config] Loaded .env from %s", path)
			break
		}
	}

	return &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":3000"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DataDir:          getEnv("DATA_DIR", "data"),
		BrainEndpoint:    getEnv("BRAIN_ENDPOINT", ""),
		BrainAPIKey:      getEnv("BRAIN_API_KEY", ""),
		SpeechEndpoint:   getEnv("TTS_ENDPOINT", ""),
		CooldownInterval: getEnvSeconds("AI_COOLDOWN_SECONDS", 4),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.Trim(strings.TrimSpace(os.Getenv(key)), `"`); value != "" {
		return value
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return time.Duration(fallback) * time.Second
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		log.Printf("[Config] Invalid %s=%q, using %ds", key, raw, fallback)
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(seconds) * time.Second
}

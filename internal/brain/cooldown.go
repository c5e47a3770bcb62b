package brain

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMinInterval is the minimum spacing between AI calls shared by
// every caller of the gateway.
const DefaultMinInterval = 4 * time.Second

// startupGrace is added on top of the remaining cooldown when the process
// restarts, so a crash loop cannot ride the edge of the window.
const startupGrace = 500 * time.Millisecond

// CooldownLedger serializes access to the AI collaborator. The timestamp of
// the last reserved call is persisted to a flat file so the cooldown
// survives process restarts.
type CooldownLedger struct {
	mu       sync.Mutex
	path     string
	interval time.Duration
	lastCall time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewCooldownLedger creates a ledger backed by the file at path. The file
// is read lazily; a missing or corrupt file means no prior call.
func NewCooldownLedger(path string, interval time.Duration) *CooldownLedger {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	l := &CooldownLedger{
		path:     path,
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	l.lastCall = l.readFile()
	return l
}

// WaitStartup blocks until the cooldown left over from a previous process
// has expired. Call once before serving requests.
func (l *CooldownLedger) WaitStartup() {
	l.mu.Lock()
	last := l.lastCall
	l.mu.Unlock()

	if last.IsZero() {
		return
	}
	remaining := l.interval - l.now().Sub(last)
	if remaining <= 0 {
		return
	}
	log.Printf("[Brain] Previous session cooldown active, waiting %.1fs", (remaining + startupGrace).Seconds())
	l.sleep(remaining + startupGrace)
}

// Reserve blocks until the cooldown window has passed, then records the
// call as happening now. The record is written before Reserve returns, so
// a crash during the subsequent AI call still counts against the window.
func (l *CooldownLedger) Reserve() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastCall.IsZero() {
		if remaining := l.interval - l.now().Sub(l.lastCall); remaining > 0 {
			l.sleep(remaining)
		}
	}

	l.lastCall = l.now()
	if err := l.writeFile(l.lastCall); err != nil {
		log.Printf("[Brain] Failed to persist cooldown timestamp: %v", err)
	}
}

// LastCall returns the most recent reserved timestamp, zero if none.
func (l *CooldownLedger) LastCall() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCall
}

func (l *CooldownLedger) readFile() time.Time {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		log.Printf("[Brain] Ignoring corrupt cooldown file %s: %v", l.path, err)
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// writeFile replaces the ledger file atomically so a crash mid-write can
// never leave a half-written timestamp.
func (l *CooldownLedger) writeFile(t time.Time) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	millis := strconv.FormatInt(t.UnixMilli(), 10)
	if err := os.WriteFile(tmp, []byte(millis), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
